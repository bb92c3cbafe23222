package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelhq/sentinel/internal/record"
)

func TestCustomersAutoVivify(t *testing.T) {
	c := NewCustomers()

	assert.Empty(t, c.Unscanned("C-never-seen"))
	assert.False(t, c.SeenRFID("C-never-seen", "PRD_F_01"))
	_, ok := c.LastScanned("C-never-seen")
	assert.False(t, ok)
	c.ConsumeMatch("C-never-seen", "PRD_F_01")
	c.ClearRFID("C-never-seen")
	assert.Zero(t, c.ExpectedWeight("C-never-seen"))
}

func TestRFIDScanMatching(t *testing.T) {
	c := NewCustomers()
	c.RecordRFID("C001", "PRD_F_01")
	c.RecordRFID("C001", "PRD_F_02")

	assert.Equal(t, []string{"PRD_F_01", "PRD_F_02"}, c.Unscanned("C001"))

	c.RecordScan("C001", "PRD_F_01", 150)
	assert.Equal(t, []string{"PRD_F_02"}, c.Unscanned("C001"))

	c.ConsumeMatch("C001", "PRD_F_01")
	assert.False(t, c.SeenRFID("C001", "PRD_F_01"))
	assert.True(t, c.SeenRFID("C001", "PRD_F_02"))
}

func TestLastScannedIsOrderedTail(t *testing.T) {
	c := NewCustomers()
	c.RecordScan("C001", "PRD_F_01", 150)
	c.RecordScan("C001", "PRD_F_09", 300)
	c.RecordScan("C001", "PRD_F_01", 150)

	last, ok := c.LastScanned("C001")
	require.True(t, ok)
	assert.Equal(t, "PRD_F_01", last, "tail of the scan log, repeats included")
	assert.Equal(t, 600.0, c.ExpectedWeight("C001"))
}

func TestClearRFIDFullReset(t *testing.T) {
	c := NewCustomers()
	c.RecordRFID("C001", "PRD_F_01")
	c.RecordRFID("C001", "PRD_F_02")
	c.RecordRFID("C001", "PRD_F_03")
	c.RecordScan("C001", "PRD_F_01", 150)

	assert.Equal(t, []string{"PRD_F_02", "PRD_F_03"}, c.Unscanned("C001"))

	c.ClearRFID("C001")
	assert.Empty(t, c.Unscanned("C001"))
	assert.False(t, c.SeenRFID("C001", "PRD_F_02"))
	assert.Empty(t, c.WithRFID())
}

func TestWithRFID(t *testing.T) {
	c := NewCustomers()
	c.RecordRFID("C002", "PRD_F_01")
	c.RecordRFID("C001", "PRD_F_02")
	c.RecordScan("C003", "PRD_F_03", 100)

	assert.Equal(t, []string{"C001", "C002"}, c.WithRFID())
	assert.Equal(t, 3, c.Tracked())
}

func TestInventoryObserve(t *testing.T) {
	inv := NewInventory()

	_, mismatch := inv.Observe("PRD_F_03", 120)
	assert.False(t, mismatch, "first observation never mismatches")

	prior, mismatch := inv.Observe("PRD_F_03", 150)
	assert.True(t, mismatch)
	assert.Equal(t, 120, prior)

	_, mismatch = inv.Observe("PRD_F_03", 150)
	assert.False(t, mismatch, "identical repeat is clean")
	assert.Equal(t, 1, inv.Tracked())
}

func sessRec(station, customer string, kind record.Kind, at time.Time) *record.Record {
	return &record.Record{Kind: kind, StationID: station, CustomerID: customer, Timestamp: at}
}

func TestSessionsTouchAndSweep(t *testing.T) {
	t0 := time.Date(2025, 8, 13, 16, 0, 0, 0, time.UTC)
	s := NewSessions(300 * time.Second)

	sess := s.Touch(sessRec("SCC1", "C001", record.KindRFID, t0))
	s.Touch(sessRec("SCC1", "C001", record.KindPOS, t0.Add(4*time.Second)))
	s.Touch(sessRec("SCC2", "C002", record.KindPOS, t0.Add(10*time.Second)))

	assert.Equal(t, t0, sess.StartTime)
	assert.Equal(t, t0.Add(4*time.Second), sess.LastActivity)
	assert.Len(t, sess.Events, 2)
	assert.Len(t, sess.POSEvents(), 1)
	assert.Equal(t, 2, s.Live())

	// Nothing idle long enough yet.
	assert.Empty(t, s.Sweep(t0.Add(60*time.Second)))
	assert.Equal(t, 2, s.Live())

	// C001 idle since t0+4s; expires after the 300s timeout.
	expired := s.Sweep(t0.Add(305 * time.Second))
	require.Len(t, expired, 1)
	assert.Equal(t, "C001", expired[0].CustomerID)
	assert.Equal(t, 1, s.Live())

	_, ok := s.Get("SCC1", "C001")
	assert.False(t, ok)
	_, ok = s.Get("SCC2", "C002")
	assert.True(t, ok)
}
