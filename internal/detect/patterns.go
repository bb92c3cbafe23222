package detect

import (
	"sort"
	"sync"

	"github.com/sentinelhq/sentinel/internal/record"
	"github.com/sentinelhq/sentinel/internal/state"
)

// PatternAnalyzer evaluates behavioral rules over whole sessions, outside
// the per-record rule pass: rapid consecutive scans and suspiciously short
// sessions on live sessions, and the product mismatch check when a session
// expires. Each flag fires at most once per session.
type PatternAnalyzer struct {
	mu      sync.Mutex
	flagged map[string]map[string]bool // session key -> flag name -> fired
}

// NewPatternAnalyzer creates an analyzer with no flagged sessions.
func NewPatternAnalyzer() *PatternAnalyzer {
	return &PatternAnalyzer{flagged: make(map[string]map[string]bool)}
}

// OnRecord evaluates the live-session rules after sess absorbed a new
// record.
func (p *PatternAnalyzer) OnRecord(sess *state.Session, t *Thresholds) []Finding {
	pos := sess.POSEvents()
	var out []Finding

	if len(pos) >= 2 {
		gap := pos[len(pos)-1].Timestamp.Sub(pos[len(pos)-2].Timestamp)
		if gap >= 0 && gap < t.RapidScanGap && p.once(sess, EventRapidTransactions) {
			out = append(out, Finding{
				Name:     EventRapidTransactions,
				Severity: SeverityWarning,
				Attrs: map[string]any{
					"station_id":  sess.StationID,
					"customer_id": sess.CustomerID,
					"gap_seconds": gap.Seconds(),
				},
			})
		}
	}

	if sess.Duration() < t.ShortSessionMax && len(pos) > t.ShortSessionMinScans &&
		p.once(sess, EventShortSession) {
		out = append(out, Finding{
			Name:     EventShortSession,
			Severity: SeverityWarning,
			Attrs: map[string]any{
				"station_id":       sess.StationID,
				"customer_id":      sess.CustomerID,
				"duration_seconds": sess.Duration().Seconds(),
				"pos_events":       len(pos),
			},
		})
	}

	return out
}

// OnExpire evaluates the end-of-session rules for an expired session and
// releases its flag state. The mismatch check uses only records observed
// during this session, so the long-lived customer sets do not bleed between
// sessions.
func (p *PatternAnalyzer) OnExpire(sess *state.Session) []Finding {
	p.mu.Lock()
	delete(p.flagged, sessionKey(sess))
	p.mu.Unlock()

	rfid := make(map[string]struct{})
	scanned := make(map[string]struct{})
	for _, e := range sess.Events {
		sku, ok := e.Record.Str("sku")
		if !ok || sku == "" {
			continue
		}
		switch e.Kind {
		case record.KindRFID:
			rfid[sku] = struct{}{}
		case record.KindPOS:
			scanned[sku] = struct{}{}
		}
	}

	var missing []string
	for sku := range rfid {
		if _, ok := scanned[sku]; !ok {
			missing = append(missing, sku)
		}
	}
	sort.Strings(missing)

	var out []Finding
	for _, sku := range missing {
		out = append(out, Finding{
			Name:     EventSessionMismatch,
			Severity: SeverityWarning,
			Attrs: map[string]any{
				"station_id":  sess.StationID,
				"customer_id": sess.CustomerID,
				"product_sku": sku,
			},
		})
	}
	return out
}

func (p *PatternAnalyzer) once(sess *state.Session, flag string) bool {
	key := sessionKey(sess)
	p.mu.Lock()
	defer p.mu.Unlock()
	flags, ok := p.flagged[key]
	if !ok {
		flags = make(map[string]bool)
		p.flagged[key] = flags
	}
	if flags[flag] {
		return false
	}
	flags[flag] = true
	return true
}

func sessionKey(sess *state.Session) string {
	return sess.StationID + "/" + sess.CustomerID
}
