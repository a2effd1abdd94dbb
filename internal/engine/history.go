package engine

// sessionLog is the bounded in-memory session history. When the log reaches
// capacity it evicts the oldest half, so memory stays fixed under sustained
// load. Not safe for concurrent use on its own; the engine's lock guards it.
type sessionLog struct {
	capacity int
	entries  []SessionResult
}

const defaultHistoryCap = 10000

func newSessionLog(capacity int) *sessionLog {
	if capacity <= 0 {
		capacity = defaultHistoryCap
	}
	return &sessionLog{
		capacity: capacity,
		entries:  make([]SessionResult, 0, capacity),
	}
}

func (l *sessionLog) append(r SessionResult) {
	if len(l.entries) >= l.capacity {
		keep := l.capacity / 2
		n := copy(l.entries, l.entries[len(l.entries)-keep:])
		l.entries = l.entries[:n]
	}
	l.entries = append(l.entries, r)
}

func (l *sessionLog) len() int { return len(l.entries) }

// recent returns a copy of the newest n entries, oldest first.
func (l *sessionLog) recent(n int) []SessionResult {
	if n <= 0 || n > len(l.entries) {
		n = len(l.entries)
	}
	out := make([]SessionResult, n)
	copy(out, l.entries[len(l.entries)-n:])
	return out
}

// all returns a copy of the full log, oldest first.
func (l *sessionLog) all() []SessionResult {
	return l.recent(len(l.entries))
}

// forSite returns a copy of the newest n entries for one site type, oldest
// first. n <= 0 means no limit.
func (l *sessionLog) forSite(siteType string, n int) []SessionResult {
	var out []SessionResult
	for i := len(l.entries) - 1; i >= 0; i-- {
		if l.entries[i].SiteType != siteType {
			continue
		}
		out = append(out, l.entries[i])
		if n > 0 && len(out) == n {
			break
		}
	}
	// collected newest-first; reverse to oldest-first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// detectedMethods returns the detection methods of the newest limit detected
// sessions for a site type, excluding the session with excludeID.
func (l *sessionLog) detectedMethods(siteType string, limit int, excludeID string) map[string]struct{} {
	methods := make(map[string]struct{})
	seen := 0
	for i := len(l.entries) - 1; i >= 0 && seen < limit; i-- {
		e := l.entries[i]
		if e.SiteType != siteType || !e.Detected || e.ID == excludeID {
			continue
		}
		seen++
		if e.DetectionMethod != "" {
			methods[e.DetectionMethod] = struct{}{}
		}
	}
	return methods
}
