// Package detect implements the detection rule engine: a fixed, ordered set
// of detectors evaluated against every incoming record plus the shared
// windowed cache and entity state.
package detect

import (
	"time"

	"github.com/sentinelhq/sentinel/internal/cache"
	"github.com/sentinelhq/sentinel/internal/catalog"
	"github.com/sentinelhq/sentinel/internal/record"
	"github.com/sentinelhq/sentinel/internal/state"
)

// Severity classifies a finding.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event display names, matching the reference output corpus.
const (
	EventSystemsCrash      = "Unexpected Systems Crash"
	EventSuccessOperation  = "Success Operation"
	EventWeightDiscrepancy = "Weight Discrepancies"
	EventBarcodeSwitching  = "Barcode Switching"
	EventLongQueue         = "Long Queue Length"
	EventLongWait          = "Long Wait Time"
	EventInventoryMismatch = "Inventory Discrepancy"
	EventStaffingNeeds     = "Staffing Needs"
	EventCheckoutAction    = "Checkout Station Action"
	EventScannerAvoidance  = "Scanner Avoidance"
	EventLowAccuracy       = "Low Recognition Accuracy"
	EventPotentialCrash    = "Potential System Crash"
	EventSensorMalfunction = "Sensor Malfunction"
	EventWeightFraud       = "Weight Fraud"
	EventRapidTransactions = "Rapid Transactions"
	EventShortSession      = "Suspicious Short Session"
	EventSessionMismatch   = "Session Product Mismatch"
)

// Finding is one anomaly produced by a detector, before the emitter assigns
// it an id and timestamp.
type Finding struct {
	Name     string
	Severity Severity
	Attrs    map[string]any
}

// Thresholds carries every tunable the detectors read. The engine swaps the
// whole struct atomically on config reload, so detectors must treat it as
// read-only.
type Thresholds struct {
	WeightToleranceG     float64
	QueueLengthThreshold int
	DwellTimeThresholdS  float64
	AccuracyThreshold    float64

	CorrelationEnabled  bool
	CorrelationWindow   time.Duration
	POSMatchWindow      time.Duration
	MinBasketSize       int
	WeightVarianceFloor float64
	SensorRatio         float64
	MinPOSVolume        int

	RapidScanGap         time.Duration
	ShortSessionMax      time.Duration
	ShortSessionMinScans int
}

// Deps bundles the shared stores a detector may consult.
type Deps struct {
	Catalog   *catalog.Catalog
	Cache     *cache.Window
	Customers *state.Customers
	Inventory *state.Inventory
	Sessions  *state.Sessions
	T         *Thresholds
}

// Detector consumes one record plus the shared state and returns zero or
// more findings. Detectors may keep private state (e.g. once-per-window
// suppression) but must be safe under the engine's single-writer pass.
type Detector interface {
	Name() string
	Match(record.Kind) bool
	Detect(rec *record.Record, deps *Deps) []Finding
}

// Registry executes detectors in registration order. The order is fixed and
// load-bearing: the scanner-avoidance sweep reads state mutated by the RFID
// and POS rules within the same pass, so it registers last.
type Registry struct {
	detectors []Detector
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends d to the execution order.
func (r *Registry) Register(d Detector) {
	r.detectors = append(r.detectors, d)
}

// Detect runs every detector whose kind predicate matches rec and collects
// their findings in execution order.
func (r *Registry) Detect(rec *record.Record, deps *Deps) []Finding {
	var out []Finding
	for _, d := range r.detectors {
		if !d.Match(rec.Kind) {
			continue
		}
		out = append(out, d.Detect(rec, deps)...)
	}
	return out
}

// Names lists registered detectors in execution order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.detectors))
	for _, d := range r.detectors {
		out = append(out, d.Name())
	}
	return out
}

// DefaultRegistry wires the standard rule set in its fixed order: the seven
// stream rules, the recognition-accuracy check, the correlation detectors
// (additive, gated at runtime by Thresholds.CorrelationEnabled), and the
// scanner-avoidance sweep last.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(&RFIDIngest{})
	r.Register(&POSTransaction{})
	r.Register(&ProductRecognition{})
	r.Register(&RecognitionAccuracy{})
	r.Register(&QueueMonitor{})
	r.Register(&InventorySnapshot{})
	r.Register(&Staffing{})
	r.Register(&CheckoutAction{})
	r.Register(NewCorrelationSuite())
	r.Register(&ScannerAvoidanceSweep{})
	return r
}
