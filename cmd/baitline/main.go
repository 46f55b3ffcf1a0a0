package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/quietwire/baitline/internal/config"
	"github.com/quietwire/baitline/internal/gateway"
	"github.com/quietwire/baitline/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "baitline",
	Short: "baitline - outbound scam-baiting campaign daemon",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the daemon (webhook server + dispatcher + feed sweeps)",
	RunE:  runServe,
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize the config directory",
	RunE:  runOnboard,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration and today's call summary",
	RunE:  runStatus,
}

var campaignCmd = &cobra.Command{
	Use:   "campaign",
	Short: "Control the campaign on a running daemon",
}

var campaignStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the campaign",
	RunE: func(cmd *cobra.Command, args []string) error {
		return adminPost("/campaign/start", cmd.OutOrStdout())
	},
}

var campaignStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the campaign and finalize in-flight calls",
	RunE: func(cmd *cobra.Command, args []string) error {
		return adminPost("/campaign/stop", cmd.OutOrStdout())
	},
}

var campaignStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the running campaign's counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		return adminGet("/status", cmd.OutOrStdout())
	},
}

var adminBase string

func init() {
	campaignCmd.PersistentFlags().StringVar(&adminBase, "addr",
		fmt.Sprintf("http://127.0.0.1:%d", config.DefaultPort),
		"Admin address of the running daemon")
	campaignCmd.AddCommand(campaignStartCmd, campaignStopCmd, campaignStatusCmd)
	rootCmd.AddCommand(serveCmd, onboardCmd, statusCmd, campaignCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Campaign.CallerNumber == "" {
		return fmt.Errorf("caller number not set. Run 'baitline onboard' and edit %s, or set BAITLINE_CALLER_NUMBER", config.ConfigPath())
	}

	gw, err := gateway.New(cfg)
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}
	return gw.Run(context.Background())
}

func runOnboard(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	cfgDir := config.ConfigDir()
	cfgPath := config.ConfigPath()

	if err := os.MkdirAll(cfgDir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		cfg := config.DefaultConfig()
		data, _ := json.MarshalIndent(cfg, "", "  ")
		if err := os.WriteFile(cfgPath, data, 0644); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Fprintf(out, "Created config: %s\n", cfgPath)
	} else {
		fmt.Fprintf(out, "Config already exists: %s\n", cfgPath)
	}

	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintf(out, "  1. Edit %s to set the caller number and provider credentials\n", cfgPath)
	fmt.Fprintln(out, "  2. Add feed URLs or a targets file")
	fmt.Fprintln(out, "  3. Run 'baitline serve' and then 'baitline campaign start'")
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(out, "Config: error (%v)\n", err)
		return nil
	}

	fmt.Fprintf(out, "Config: %s\n", config.ConfigPath())
	fmt.Fprintf(out, "Caller number: %s\n", displayOr(cfg.Campaign.CallerNumber, "not set"))
	fmt.Fprintf(out, "Provider: %s\n", displayOr(cfg.Provider.Type, "sim"))
	fmt.Fprintf(out, "Caps: %d/day, %d concurrent\n", cfg.Campaign.DailyCap, cfg.Campaign.ConcurrencyCap)
	fmt.Fprintf(out, "Call window: %02d:00-%02d:00 (%s)\n",
		cfg.Source.CallWindowStartHour, cfg.Source.CallWindowEndHour, cfg.Source.DefaultTimezone)
	fmt.Fprintf(out, "Feeds: %d\n", len(cfg.Source.FeedURLs))

	s, err := store.Open(cfg.Store.DBPath)
	if err != nil {
		fmt.Fprintf(out, "Store: error (%v)\n", err)
		return nil
	}
	defer s.Close()

	if n, err := s.CountCompletedSince(localMidnight(time.Now())); err == nil {
		fmt.Fprintf(out, "Calls finished today: %d\n", n)
	}
	return nil
}

// localMidnight is the start of the current local day, the same boundary
// the daemon's daily counter reset uses.
func localMidnight(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

func displayOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

var adminClient = &http.Client{Timeout: 10 * time.Second}

func adminPost(path string, out io.Writer) error {
	resp, err := adminClient.Post(adminBase+path, "application/json", nil)
	if err != nil {
		return fmt.Errorf("daemon not reachable at %s: %w", adminBase, err)
	}
	return printAdminResponse(resp, out)
}

func adminGet(path string, out io.Writer) error {
	resp, err := adminClient.Get(adminBase + path)
	if err != nil {
		return fmt.Errorf("daemon not reachable at %s: %w", adminBase, err)
	}
	return printAdminResponse(resp, out)
}

func printAdminResponse(resp *http.Response, out io.Writer) error {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("daemon returned %d: %s", resp.StatusCode, string(body))
	}

	// Pretty-print JSON responses, pass anything else through.
	var pretty map[string]any
	if json.Unmarshal(body, &pretty) == nil {
		formatted, _ := json.MarshalIndent(pretty, "", "  ")
		fmt.Fprintln(out, string(formatted))
		return nil
	}
	fmt.Fprintln(out, string(body))
	return nil
}
