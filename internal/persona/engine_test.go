package persona

import "testing"

func poolContains(pool []string, s string) bool {
	for _, v := range pool {
		if v == s {
			return true
		}
	}
	return false
}

// allPoolsContainPrefix reports whether line starts with an entry from pool
// (Respond appends a follow-up after the reactive line).
func startsWithEntry(pool []string, line string) bool {
	for _, v := range pool {
		if len(line) >= len(v) && line[:len(v)] == v {
			return true
		}
	}
	return false
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		speech string
		digits string
		want   InputClass
	}{
		{"both empty", "", "", ClassSilence},
		{"whitespace speech", "   ", "", ClassSilence},
		{"digits only", "", "1", ClassGeneric},
		{"plain speech", "hello can you hear me", "", ClassGeneric},
		{"gift card", "you need to buy a Gift Card right now", "", ClassKeyword},
		{"irs", "this is the IRS calling about your taxes", "", ClassKeyword},
		{"remote access", "install remote access software", "", ClassKeyword},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.speech, tt.digits); got != tt.want {
				t.Errorf("Classify(%q, %q) = %v, want %v", tt.speech, tt.digits, got, tt.want)
			}
		})
	}
}

func TestRespond_SilenceDrawsFromSilencePool(t *testing.T) {
	cat := DefaultCatalog()
	p, _ := cat.Get("mildred")
	// DerailChance can still route to the derailed pool, so a persona with
	// zero derail chance pins the selection to the silence pool.
	fixed := *p
	fixed.Escalation.DerailChance = 0

	e := NewEngine(42)
	for i := 0; i < 20; i++ {
		line, _ := e.Respond(&fixed, Counters{}, ClassSilence)
		if !startsWithEntry(fixed.SilenceLines, line) {
			t.Fatalf("response %q not drawn from silence pool", line)
		}
	}
}

func TestRespond_AppendsFollowUp(t *testing.T) {
	cat := DefaultCatalog()
	p, _ := cat.Get("herbert")
	fixed := *p
	fixed.Escalation.DerailChance = 0

	e := NewEngine(7)
	line, _ := e.Respond(&fixed, Counters{}, ClassGeneric)
	found := false
	for _, f := range fixed.FollowUps {
		if len(line) > len(f) && line[len(line)-len(f):] == f {
			found = true
		}
	}
	if !found {
		t.Errorf("response %q does not end with a follow-up variant", line)
	}
}

func TestRespond_KeywordPool(t *testing.T) {
	cat := DefaultCatalog()
	p, _ := cat.Get("walt")
	fixed := *p
	fixed.Escalation.DerailChance = 0

	e := NewEngine(3)
	line, _ := e.Respond(&fixed, Counters{}, ClassKeyword)
	if !startsWithEntry(fixed.KeywordResponses, line) {
		t.Errorf("response %q not drawn from keyword pool", line)
	}
}

func TestRespond_EscalatesToIrritated(t *testing.T) {
	cat := DefaultCatalog()
	p, _ := cat.Get("herbert") // threshold 3
	fixed := *p
	fixed.Escalation.DerailChance = 0

	e := NewEngine(1)
	c := Counters{}
	var line string
	for i := 0; i < fixed.Escalation.IrritationThreshold; i++ {
		line, c = e.Respond(&fixed, c, ClassGeneric)
	}
	if c.Mood != MoodIrritated {
		t.Fatalf("mood = %v after %d interruptions, want irritated", c.Mood, c.Interruptions)
	}
	if !startsWithEntry(fixed.IrritatedLines, line) {
		t.Errorf("escalated response %q not drawn from irritated pool", line)
	}

	// Once irritated, stays irritated and keeps drawing from that pool.
	line, c = e.Respond(&fixed, c, ClassSilence)
	if c.Mood != MoodIrritated {
		t.Error("mood should remain irritated")
	}
	if !startsWithEntry(fixed.IrritatedLines, line) {
		t.Errorf("response %q should come from irritated pool", line)
	}
}

func TestRespond_SilenceDoesNotCountAsInterruption(t *testing.T) {
	cat := DefaultCatalog()
	p, _ := cat.Get("mildred")
	fixed := *p
	fixed.Escalation.DerailChance = 0

	e := NewEngine(9)
	c := Counters{}
	for i := 0; i < 10; i++ {
		_, c = e.Respond(&fixed, c, ClassSilence)
	}
	if c.Interruptions != 0 {
		t.Errorf("interruptions = %d after silence-only turns, want 0", c.Interruptions)
	}
	if c.Mood == MoodIrritated {
		t.Error("silence alone should not escalate mood")
	}
}

func TestRespond_DerailIncrementsForgetfulness(t *testing.T) {
	cat := DefaultCatalog()
	p, _ := cat.Get("dottie")
	fixed := *p
	fixed.Escalation.DerailChance = 1.0 // always derail
	fixed.Escalation.IrritationThreshold = 100

	e := NewEngine(5)
	line, c := e.Respond(&fixed, Counters{}, ClassGeneric)
	if c.Forgetfulness != 1 {
		t.Errorf("forgetfulness = %d, want 1", c.Forgetfulness)
	}
	if !startsWithEntry(fixed.DerailedLines, line) {
		t.Errorf("response %q not drawn from derailed pool", line)
	}
}

func TestRespond_Deterministic(t *testing.T) {
	cat := DefaultCatalog()
	p, _ := cat.Get("mildred")

	a := NewEngine(1234)
	b := NewEngine(1234)
	for i := 0; i < 10; i++ {
		la, _ := a.Respond(p, Counters{}, ClassGeneric)
		lb, _ := b.Respond(p, Counters{}, ClassGeneric)
		if la != lb {
			t.Fatalf("same seed diverged at turn %d: %q vs %q", i, la, lb)
		}
	}
}

func TestGreetingFromPool(t *testing.T) {
	cat := DefaultCatalog()
	e := NewEngine(77)
	for _, name := range cat.Names() {
		p, _ := cat.Get(name)
		g := e.Greeting(p)
		if !poolContains(p.Greetings, g) {
			t.Errorf("%s greeting %q not in pool", name, g)
		}
	}
}

func TestAssignRandom_CoversCatalog(t *testing.T) {
	cat := DefaultCatalog()
	e := NewEngine(0)
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		p := e.AssignRandom(cat)
		if p == nil {
			t.Fatal("AssignRandom returned nil")
		}
		seen[p.Name] = true
	}
	if len(seen) != cat.Len() {
		t.Errorf("uniform assignment over 200 draws hit %d of %d personas", len(seen), cat.Len())
	}
}

func TestCallbackClass(t *testing.T) {
	tests := []struct {
		category string
		want     PoolKind
	}{
		{"tax", PoolBusiness},
		{"tech_support", PoolBusiness},
		{"bank", PoolBusiness},
		{"romance", PoolPersonal},
		{"charity", PoolPersonal},
		{"unknown", PoolPersonal},
		{"", PoolPersonal},
	}
	for _, tt := range tests {
		if got := CallbackClass(tt.category); got != tt.want {
			t.Errorf("CallbackClass(%q) = %v, want %v", tt.category, got, tt.want)
		}
	}
}
