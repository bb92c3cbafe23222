package detect

import (
	"math"
	"sort"

	"github.com/sentinelhq/sentinel/internal/record"
)

// RFIDIngest tracks SKUs seen on the RFID stream. Emits nothing directly;
// the POS rule and the sweep consume the state it writes.
type RFIDIngest struct{}

func (*RFIDIngest) Name() string             { return "rfid_ingest" }
func (*RFIDIngest) Match(k record.Kind) bool { return k == record.KindRFID }

func (*RFIDIngest) Detect(rec *record.Record, deps *Deps) []Finding {
	if rec.Status != record.StatusActive {
		return nil
	}
	sku, ok := rec.Str("sku")
	if !ok || sku == "" {
		return nil
	}
	deps.Customers.RecordRFID(rec.CustomerID, sku)
	return nil
}

// POSTransaction handles scans: crash reporting, RFID match consumption, and
// the weight-discrepancy check. The price field substitutes for the expected
// weight; that proxy comes from the reference data model and is preserved
// deliberately.
type POSTransaction struct{}

func (*POSTransaction) Name() string             { return "pos_transaction" }
func (*POSTransaction) Match(k record.Kind) bool { return k == record.KindPOS }

func (*POSTransaction) Detect(rec *record.Record, deps *Deps) []Finding {
	if rec.Status == record.StatusSystemCrash {
		return []Finding{{
			Name:     EventSystemsCrash,
			Severity: SeverityCritical,
			Attrs: map[string]any{
				"station_id":       rec.StationID,
				"duration_seconds": 180,
			},
		}}
	}

	sku, _ := rec.Str("sku")
	weight, hasWeight := rec.Float("weight_g")
	price, hasPrice := rec.Float("price")

	var out []Finding

	if sku != "" {
		deps.Customers.RecordScan(rec.CustomerID, sku, weight)

		if deps.Customers.SeenRFID(rec.CustomerID, sku) {
			out = append(out, Finding{
				Name:     EventSuccessOperation,
				Severity: SeverityInfo,
				Attrs: map[string]any{
					"station_id":  rec.StationID,
					"customer_id": rec.CustomerID,
					"product_sku": sku,
				},
			})
			deps.Customers.ConsumeMatch(rec.CustomerID, sku)
		}
	}

	if hasWeight && hasPrice && weight != 0 && price != 0 &&
		math.Abs(weight-price) > deps.T.WeightToleranceG {
		out = append(out, Finding{
			Name:     EventWeightDiscrepancy,
			Severity: SeverityWarning,
			Attrs: map[string]any{
				"station_id":      rec.StationID,
				"customer_id":     rec.CustomerID,
				"product_sku":     sku,
				"expected_weight": price,
				"actual_weight":   weight,
			},
		})
	}

	return out
}

// ProductRecognition compares the vision model's prediction against the
// customer's most recently scanned SKU.
type ProductRecognition struct{}

func (*ProductRecognition) Name() string             { return "product_recognition" }
func (*ProductRecognition) Match(k record.Kind) bool { return k == record.KindRecognition }

func (*ProductRecognition) Detect(rec *record.Record, deps *Deps) []Finding {
	if rec.Status != record.StatusActive {
		return nil
	}
	predicted, ok := rec.Str("predicted_product")
	if !ok || predicted == "" {
		return nil
	}
	last, ok := deps.Customers.LastScanned(rec.CustomerID)
	if !ok || predicted == last {
		return nil
	}
	return []Finding{{
		Name:     EventBarcodeSwitching,
		Severity: SeverityWarning,
		Attrs: map[string]any{
			"station_id":  rec.StationID,
			"customer_id": rec.CustomerID,
			"actual_sku":  predicted,
			"scanned_sku": last,
		},
	}}
}

// RecognitionAccuracy flags vision inferences below the confidence floor.
type RecognitionAccuracy struct{}

func (*RecognitionAccuracy) Name() string             { return "recognition_accuracy" }
func (*RecognitionAccuracy) Match(k record.Kind) bool { return k == record.KindRecognition }

func (*RecognitionAccuracy) Detect(rec *record.Record, deps *Deps) []Finding {
	if rec.Status != record.StatusActive {
		return nil
	}
	accuracy, ok := rec.Float("accuracy")
	if !ok || accuracy >= deps.T.AccuracyThreshold {
		return nil
	}
	predicted, _ := rec.Str("predicted_product")
	return []Finding{{
		Name:     EventLowAccuracy,
		Severity: SeverityWarning,
		Attrs: map[string]any{
			"station_id":    rec.StationID,
			"predicted_sku": predicted,
			"accuracy":      accuracy,
			"threshold":     deps.T.AccuracyThreshold,
		},
	}}
}

// QueueMonitor evaluates queue telemetry. The two thresholds are independent
// and both may fire for one record; a long queue additionally derives a
// staffing recommendation.
type QueueMonitor struct{}

func (*QueueMonitor) Name() string             { return "queue_monitor" }
func (*QueueMonitor) Match(k record.Kind) bool { return k == record.KindQueue }

func (*QueueMonitor) Detect(rec *record.Record, deps *Deps) []Finding {
	if rec.Status != record.StatusActive {
		return nil
	}

	var out []Finding

	if count, ok := rec.Int("customer_count"); ok && count >= deps.T.QueueLengthThreshold {
		out = append(out,
			Finding{
				Name:     EventLongQueue,
				Severity: SeverityWarning,
				Attrs: map[string]any{
					"station_id":       rec.StationID,
					"num_of_customers": count,
				},
			},
			Finding{
				Name:     EventStaffingNeeds,
				Severity: SeverityInfo,
				Attrs: map[string]any{
					"station_id": rec.StationID,
					"staff_type": "Cashier",
					"priority":   "high",
					"reason":     "Long queue detected",
				},
			},
		)
	}

	if dwell, ok := rec.Float("average_dwell_time"); ok && dwell >= deps.T.DwellTimeThresholdS {
		out = append(out, Finding{
			Name:     EventLongWait,
			Severity: SeverityWarning,
			Attrs: map[string]any{
				"station_id":        rec.StationID,
				"customer_id":       rec.CustomerID,
				"wait_time_seconds": dwell,
			},
		})
	}

	return out
}

// InventorySnapshot diffs each (sku, qty) pair against the previous snapshot
// and always overwrites the stored value afterward.
type InventorySnapshot struct{}

func (*InventorySnapshot) Name() string             { return "inventory_snapshot" }
func (*InventorySnapshot) Match(k record.Kind) bool { return k == record.KindInventory }

func (*InventorySnapshot) Detect(rec *record.Record, deps *Deps) []Finding {
	if rec.Status != record.StatusActive {
		return nil
	}

	skus := make([]string, 0, len(rec.Payload))
	for sku := range rec.Payload {
		skus = append(skus, sku)
	}
	sort.Strings(skus)

	var out []Finding
	for _, sku := range skus {
		qty, ok := rec.Int(sku)
		if !ok {
			continue
		}
		if prior, mismatch := deps.Inventory.Observe(sku, qty); mismatch {
			out = append(out, Finding{
				Name:     EventInventoryMismatch,
				Severity: SeverityWarning,
				Attrs: map[string]any{
					"SKU":                sku,
					"Expected_Inventory": prior,
					"Actual_Inventory":   qty,
				},
			})
		}
	}
	return out
}

// Staffing passes staffing control signals through as info events.
type Staffing struct{}

func (*Staffing) Name() string             { return "staffing" }
func (*Staffing) Match(k record.Kind) bool { return k == record.KindStaffing }

func (*Staffing) Detect(rec *record.Record, deps *Deps) []Finding {
	if rec.Status != record.StatusActive {
		return nil
	}
	staffType, ok := rec.Str("Staff_type")
	if !ok {
		staffType = "UNKNOWN"
	}
	return []Finding{{
		Name:     EventStaffingNeeds,
		Severity: SeverityInfo,
		Attrs: map[string]any{
			"station_id": rec.StationID,
			"Staff_type": staffType,
		},
	}}
}

// CheckoutAction passes checkout open/close signals through as info events.
type CheckoutAction struct{}

func (*CheckoutAction) Name() string             { return "checkout_action" }
func (*CheckoutAction) Match(k record.Kind) bool { return k == record.KindCheckout }

func (*CheckoutAction) Detect(rec *record.Record, deps *Deps) []Finding {
	if rec.Status != record.StatusActive {
		return nil
	}
	action, ok := rec.Str("Action")
	if !ok {
		action = "Open"
	}
	return []Finding{{
		Name:     EventCheckoutAction,
		Severity: SeverityInfo,
		Attrs: map[string]any{
			"station_id": rec.StationID,
			"Action":     action,
		},
	}}
}

// ScannerAvoidanceSweep runs after every record regardless of kind: every
// customer holding RFID-seen SKUs with no matching scan gets one finding per
// SKU, then that customer's whole RFID set is cleared. The full clear is the
// intended noise-suppression policy, not an optimization shortcut.
type ScannerAvoidanceSweep struct{}

func (*ScannerAvoidanceSweep) Name() string           { return "scanner_avoidance_sweep" }
func (*ScannerAvoidanceSweep) Match(record.Kind) bool { return true }

func (*ScannerAvoidanceSweep) Detect(rec *record.Record, deps *Deps) []Finding {
	var out []Finding
	for _, cust := range deps.Customers.WithRFID() {
		missing := deps.Customers.Unscanned(cust)
		if len(missing) == 0 {
			continue
		}
		for _, sku := range missing {
			out = append(out, Finding{
				Name:     EventScannerAvoidance,
				Severity: SeverityWarning,
				Attrs: map[string]any{
					"station_id":  rec.StationID,
					"customer_id": cust,
					"product_sku": sku,
				},
			})
		}
		deps.Customers.ClearRFID(cust)
	}
	return out
}
