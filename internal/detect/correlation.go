package detect

import (
	"strings"
	"sync"
	"time"

	"github.com/sentinelhq/sentinel/internal/cache"
	"github.com/sentinelhq/sentinel/internal/record"
)

// CorrelationSuite layers the cross-stream detectors on top of the windowed
// cache. It matches every kind and dispatches internally; all checks are
// additive to the base rules and disabled as a group via thresholds.
type CorrelationSuite struct {
	mu         sync.Mutex
	seen       map[string]struct{}  // stations that have sent at least one record
	lastCrash  map[string]time.Time // station -> last crash finding
	lastSensor map[string]time.Time // station/sensor -> last malfunction finding
}

// NewCorrelationSuite creates the suite with empty suppression state.
func NewCorrelationSuite() *CorrelationSuite {
	return &CorrelationSuite{
		seen:       make(map[string]struct{}),
		lastCrash:  make(map[string]time.Time),
		lastSensor: make(map[string]time.Time),
	}
}

func (*CorrelationSuite) Name() string           { return "correlation" }
func (*CorrelationSuite) Match(record.Kind) bool { return true }

func (c *CorrelationSuite) Detect(rec *record.Record, deps *Deps) []Finding {
	if !deps.T.CorrelationEnabled {
		return nil
	}

	var out []Finding
	switch rec.Kind {
	case record.KindRFID:
		out = append(out, c.rfidChecks(rec, deps)...)
	case record.KindRecognition:
		out = append(out, c.barcodeSwitch(rec, deps)...)
	case record.KindPOS:
		out = append(out, c.weightFraud(rec, deps)...)
	}
	out = append(out, c.systemHealth(rec, deps)...)
	return out
}

// rfidChecks validates the EPC against the catalog range and looks for an
// in-scan-area read with no matching POS scan inside the correlation window.
func (c *CorrelationSuite) rfidChecks(rec *record.Record, deps *Deps) []Finding {
	if rec.Status != record.StatusActive {
		return nil
	}
	sku, _ := rec.Str("sku")
	epc, _ := rec.Str("epc")
	if sku == "" {
		return nil
	}

	var out []Finding

	if epc != "" {
		if _, known := deps.Catalog.Product(sku); known && !deps.Catalog.ValidateEPC(epc, sku) {
			out = append(out, Finding{
				Name:     EventBarcodeSwitching,
				Severity: SeverityWarning,
				Attrs: map[string]any{
					"station_id":       rec.StationID,
					"epc":              epc,
					"claimed_sku":      sku,
					"detection_method": "EPC outside catalog range",
				},
			})
		}
	}

	if loc, _ := rec.Str("location"); loc == "IN_SCAN_AREA" {
		matched := false
		for _, e := range deps.Cache.Query(rec.StationID, record.KindPOS, rec.Timestamp, deps.T.CorrelationWindow) {
			if s, _ := e.Record.Str("sku"); s == sku {
				matched = true
				break
			}
		}
		if !matched {
			out = append(out, Finding{
				Name:     EventScannerAvoidance,
				Severity: SeverityWarning,
				Attrs: map[string]any{
					"station_id":       rec.StationID,
					"product_sku":      sku,
					"epc":              epc,
					"detection_method": "RFID without POS",
				},
			})
		}
	}

	return out
}

// barcodeSwitch pairs a recognition inference with the closest POS scan
// inside the POS match window and flags it only when the SKU category
// prefixes differ (PRD_F_xx vs PRD_S_xx), so near-identical products inside
// one category never alarm.
func (c *CorrelationSuite) barcodeSwitch(rec *record.Record, deps *Deps) []Finding {
	if rec.Status != record.StatusActive {
		return nil
	}
	predicted, _ := rec.Str("predicted_product")
	if predicted == "" {
		return nil
	}

	var (
		closest *cache.Entry
		bestGap time.Duration
	)
	for _, e := range deps.Cache.Query(rec.StationID, record.KindPOS, rec.Timestamp, deps.T.POSMatchWindow) {
		gap := rec.Timestamp.Sub(e.Record.Timestamp)
		if gap < 0 {
			gap = -gap
		}
		if closest == nil || gap < bestGap {
			entry := e
			closest = &entry
			bestGap = gap
		}
	}
	if closest == nil {
		return nil
	}
	scanned, _ := closest.Record.Str("sku")
	if scanned == "" || skuCategory(predicted) == skuCategory(scanned) {
		return nil
	}
	return []Finding{{
		Name:     EventBarcodeSwitching,
		Severity: SeverityWarning,
		Attrs: map[string]any{
			"station_id":       rec.StationID,
			"customer_id":      rec.CustomerID,
			"actual_sku":       predicted,
			"scanned_sku":      scanned,
			"detection_method": "correlated recognition",
		},
	}}
}

// weightFraud flags a basket whose distinct items all weigh suspiciously
// alike: several different SKUs sold to one customer within the window with
// near-zero weight variance suggests one cheap item scanned repeatedly.
func (c *CorrelationSuite) weightFraud(rec *record.Record, deps *Deps) []Finding {
	if rec.CustomerID == "" {
		return nil
	}

	weightBySKU := make(map[string]float64)
	for _, e := range deps.Cache.Query(rec.StationID, record.KindPOS, rec.Timestamp, deps.T.CorrelationWindow) {
		if e.Record.CustomerID != rec.CustomerID {
			continue
		}
		sku, _ := e.Record.Str("sku")
		w, ok := e.Record.Float("weight_g")
		if sku == "" || !ok {
			continue
		}
		weightBySKU[sku] = w
	}
	if len(weightBySKU) < deps.T.MinBasketSize {
		return nil
	}

	weights := make([]float64, 0, len(weightBySKU))
	for _, w := range weightBySKU {
		weights = append(weights, w)
	}
	v := variance(weights)
	if v >= deps.T.WeightVarianceFloor {
		return nil
	}
	return []Finding{{
		Name:     EventWeightFraud,
		Severity: SeverityWarning,
		Attrs: map[string]any{
			"station_id":      rec.StationID,
			"customer_id":     rec.CustomerID,
			"distinct_skus":   len(weightBySKU),
			"weight_variance": v,
		},
	}}
}

// systemHealth derives station-level alerts from stream volume inside the
// window: total silence means a likely crash, and an RFID or recognition
// feed far below the POS volume means a sensor is failing. Both findings are
// suppressed for one window length per station to avoid a finding per record.
func (c *CorrelationSuite) systemHealth(rec *record.Record, deps *Deps) []Finding {
	window := deps.T.CorrelationWindow
	all := deps.Cache.QueryAll(rec.StationID, rec.Timestamp, window)
	first := c.firstSighting(rec.StationID)

	// The record under processing is already cached; activity means anything
	// besides it.
	others := 0
	counts := make(map[record.Kind]int)
	for _, e := range all {
		counts[e.Record.Kind]++
		if e.Record != rec {
			others++
		}
	}

	var out []Finding

	if others == 0 {
		// A station's first record ever is start-up, not recovery from a
		// crash. Silence only matters once the station has been active.
		if first {
			return out
		}
		if c.suppress(c.lastCrash, rec.StationID, rec.Timestamp, window) {
			out = append(out, Finding{
				Name:     EventPotentialCrash,
				Severity: SeverityCritical,
				Attrs: map[string]any{
					"station_id":       rec.StationID,
					"duration_seconds": int(window.Seconds()),
					"detection_method": "No activity across streams",
				},
			})
		}
		return out
	}

	pos := counts[record.KindPOS]
	if pos < deps.T.MinPOSVolume {
		// Not enough POS volume for a meaningful ratio; an expected value of
		// zero is a data-quality issue, not an anomaly signal.
		return out
	}
	for _, sensor := range []struct {
		kind record.Kind
		name string
	}{
		{record.KindRFID, "rfid"},
		{record.KindRecognition, "product_recognition"},
	} {
		observed := counts[sensor.kind]
		if float64(observed) >= deps.T.SensorRatio*float64(pos) {
			continue
		}
		if !c.suppress(c.lastSensor, rec.StationID+"/"+sensor.name, rec.Timestamp, window) {
			continue
		}
		out = append(out, Finding{
			Name:     EventSensorMalfunction,
			Severity: SeverityWarning,
			Attrs: map[string]any{
				"station_id":     rec.StationID,
				"sensor":         sensor.name,
				"observed":       observed,
				"pos_volume":     pos,
				"expected_ratio": deps.T.SensorRatio,
			},
		})
	}
	return out
}

// firstSighting marks station as seen and reports whether this was its first
// record.
func (c *CorrelationSuite) firstSighting(station string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.seen[station]; ok {
		return false
	}
	c.seen[station] = struct{}{}
	return true
}

// suppress records a firing for key at ts and reports whether enough time
// has passed since the previous one.
func (c *CorrelationSuite) suppress(m map[string]time.Time, key string, ts time.Time, window time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if last, ok := m[key]; ok && ts.Sub(last) < window {
		return false
	}
	m[key] = ts
	return true
}

// skuCategory returns the category prefix of a SKU ("PRD_F_03" -> "PRD_F").
func skuCategory(sku string) string {
	if i := strings.LastIndex(sku, "_"); i > 0 {
		return sku[:i]
	}
	return sku
}

func variance(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var mean float64
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	var sum float64
	for _, x := range xs {
		d := x - mean
		sum += d * d
	}
	return sum / float64(len(xs)-1)
}
