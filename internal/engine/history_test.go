package engine

import (
	"fmt"
	"testing"
)

func makeResult(siteType string, i int, detected bool, method string) SessionResult {
	return SessionResult{
		ID:              fmt.Sprintf("%s-%d", siteType, i),
		SiteType:        siteType,
		Success:         !detected,
		Detected:        detected,
		DetectionMethod: method,
		ResponseTimeMs:  1000,
	}
}

func TestSessionLog_BoundedEviction(t *testing.T) {
	l := newSessionLog(100)
	for i := 0; i < 250; i++ {
		l.append(makeResult("a", i, false, ""))
		if l.len() > 100 {
			t.Fatalf("log grew past capacity: %d", l.len())
		}
	}
	// At the 100th append the oldest half is dropped; the log holds the
	// survivors plus everything after.
	if l.len() == 0 {
		t.Fatal("log is empty after appends")
	}
	newest := l.recent(1)
	if newest[0].ID != "a-249" {
		t.Errorf("newest entry = %s, want a-249", newest[0].ID)
	}
}

func TestSessionLog_EvictionKeepsMostRecentHalf(t *testing.T) {
	l := newSessionLog(10)
	for i := 0; i < 10; i++ {
		l.append(makeResult("a", i, false, ""))
	}
	l.append(makeResult("a", 10, false, ""))
	// Capacity hit: entries 0-4 evicted, 5-9 kept, 10 appended.
	if l.len() != 6 {
		t.Fatalf("len = %d, want 6", l.len())
	}
	oldest := l.all()[0]
	if oldest.ID != "a-5" {
		t.Errorf("oldest survivor = %s, want a-5", oldest.ID)
	}
}

func TestSessionLog_Recent(t *testing.T) {
	l := newSessionLog(100)
	for i := 0; i < 20; i++ {
		l.append(makeResult("a", i, false, ""))
	}

	got := l.recent(5)
	if len(got) != 5 {
		t.Fatalf("recent(5) returned %d entries", len(got))
	}
	if got[0].ID != "a-15" || got[4].ID != "a-19" {
		t.Errorf("recent window wrong: %s..%s", got[0].ID, got[4].ID)
	}

	if n := len(l.recent(0)); n != 20 {
		t.Errorf("recent(0) = %d entries, want all 20", n)
	}
}

func TestSessionLog_ForSite(t *testing.T) {
	l := newSessionLog(100)
	for i := 0; i < 10; i++ {
		l.append(makeResult("a", i, false, ""))
		l.append(makeResult("b", i, false, ""))
	}

	got := l.forSite("a", 3)
	if len(got) != 3 {
		t.Fatalf("forSite returned %d entries", len(got))
	}
	for _, r := range got {
		if r.SiteType != "a" {
			t.Errorf("wrong site type in window: %s", r.SiteType)
		}
	}
	if got[0].ID != "a-7" || got[2].ID != "a-9" {
		t.Errorf("window not newest-first ordered oldest-first: %s..%s", got[0].ID, got[2].ID)
	}
}

func TestSessionLog_DetectedMethods(t *testing.T) {
	l := newSessionLog(100)
	l.append(makeResult("a", 0, true, "canvas_fingerprint"))
	l.append(makeResult("a", 1, false, ""))
	l.append(makeResult("a", 2, true, "mouse_entropy"))
	l.append(makeResult("b", 3, true, "other_site_method"))
	current := makeResult("a", 4, true, "behavioral_timing")
	l.append(current)

	methods := l.detectedMethods("a", 100, current.ID)
	if len(methods) != 2 {
		t.Fatalf("methods = %v, want 2 entries", methods)
	}
	if _, ok := methods["canvas_fingerprint"]; !ok {
		t.Error("missing canvas_fingerprint")
	}
	if _, ok := methods["behavioral_timing"]; ok {
		t.Error("current session's method must be excluded")
	}
	if _, ok := methods["other_site_method"]; ok {
		t.Error("other site types must not leak in")
	}
}
