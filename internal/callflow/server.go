package callflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/quietwire/baitline/internal/dispatch"
)

// Campaign is the admin surface the server exposes over HTTP.
type Campaign interface {
	Start(ctx context.Context) error
	Stop()
	Status() dispatch.Status
}

// Server hosts the provider webhook endpoints and the campaign admin
// endpoints on one listener.
type Server struct {
	ctrl     *Controller
	campaign Campaign
	mux      *http.ServeMux
	httpSrv  *http.Server
}

func NewServer(host string, port int, ctrl *Controller, campaign Campaign) *Server {
	s := &Server{
		ctrl:     ctrl,
		campaign: campaign,
		mux:      http.NewServeMux(),
	}
	s.routes()
	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Handler:      s.mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/webhook/answer", s.handleAnswer)
	s.mux.HandleFunc("/webhook/capture", s.handleCapture)
	s.mux.HandleFunc("/webhook/status", s.handleStatus)
	s.mux.HandleFunc("/webhook/recording", s.handleRecording)
	s.mux.HandleFunc("/webhook/transcript", s.handleTranscript)
	s.mux.HandleFunc("/status", s.handleCampaignStatus)
	s.mux.HandleFunc("/campaign/start", s.handleCampaignStart)
	s.mux.HandleFunc("/campaign/stop", s.handleCampaignStop)
}

// Start begins serving in the background; listener errors surface in the
// log rather than tearing the process down.
func (s *Server) Start() {
	go func() {
		log.Printf("[callflow] listening on %s", s.httpSrv.Addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[callflow] server error: %v", err)
		}
	}()
}

func (s *Server) Stop(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	_ = r.ParseForm()
	resp := s.ctrl.Answer(r.Context(), r.FormValue("callId"), r.FormValue("caller"))
	resp.Write(w)
}

func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	_ = r.ParseForm()
	resp := s.ctrl.Capture(r.Context(),
		r.FormValue("callId"), r.FormValue("caller"),
		r.FormValue("speech"), r.FormValue("digits"))
	resp.Write(w)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	_ = r.ParseForm()
	duration, _ := strconv.Atoi(r.FormValue("duration"))
	resp := s.ctrl.Status(r.Context(),
		r.FormValue("callId"), r.FormValue("caller"),
		r.FormValue("status"), duration)
	resp.Write(w)
}

func (s *Server) handleRecording(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	_ = r.ParseForm()
	s.ctrl.Recording(r.Context(), r.FormValue("callId"), r.FormValue("recordingUrl"))
	writeJSON(w, map[string]string{"status": "accepted"})
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	_ = r.ParseForm()
	s.ctrl.Transcription(r.Context(), r.FormValue("callId"), r.FormValue("transcript"))
	writeJSON(w, map[string]string{"status": "accepted"})
}

func (s *Server) handleCampaignStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, struct {
		dispatch.Status
		ActiveConversations int `json:"activeConversations"`
	}{
		Status:              s.campaign.Status(),
		ActiveConversations: s.ctrl.cfg.Convos.Len(),
	})
}

func (s *Server) handleCampaignStart(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	// The campaign outlives this request, so it must not inherit the
	// request context.
	if err := s.campaign.Start(context.Background()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]string{"status": "started"})
}

func (s *Server) handleCampaignStop(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	s.campaign.Stop()
	writeJSON(w, map[string]string{"status": "stopped"})
}

func requirePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
