// Package ingest glues the MQTT telemetry feed to the flight-time ledger.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/skyfleet/flytime/internal/services/flytime/osd"
	"github.com/skyfleet/flytime/internal/services/flytime/storage"
)

// Ledger is the write surface the ingestion path needs.
type Ledger interface {
	RegisterDrone(ctx context.Context, sn, droneType, version string) error
	OpenToday(ctx context.Context, sn string, now time.Time, initialTotal int64) (storage.FlightDay, error)
	ReviseAnchorOnFirstSignal(ctx context.Context, sn string, now time.Time, freshTotal int64) error
	UpdateTotal(ctx context.Context, sn string, now time.Time, freshTotal int64) error
}

// Processor applies decoded OSD messages to the ledger.
type Processor struct {
	ledger Ledger
	now    func() time.Time
}

// NewProcessor builds an ingestion processor. A nil clock defaults to
// time.Now.
func NewProcessor(ledger Ledger, clock func() time.Time) *Processor {
	if clock == nil {
		clock = time.Now
	}
	return &Processor{ledger: ledger, now: clock}
}

// HandleMessage decodes one telemetry message and applies the ledger write
// sequence. Undecodable messages are dropped silently; ledger failures are
// returned to the caller, which logs and drops (the next delivery
// self-corrects the ledger).
//
// The sequence order is load-bearing: OpenToday guarantees a row exists
// before the two guarded updates, and the anchor revision must land before
// UpdateTotal so the first signal of the day yields a zero delta instead of
// one measured against the carried-over anchor. Each step commits on its
// own, so redelivery or a crash mid-sequence converges on the same state.
func (p *Processor) HandleMessage(ctx context.Context, topic string, payload []byte) error {
	if p == nil || p.ledger == nil {
		return fmt.Errorf("processor ledger is required")
	}
	sn, ok := osd.DroneSN(topic)
	if !ok {
		return nil
	}
	total, ok := osd.TotalFlightTime(payload)
	if !ok {
		return nil
	}

	now := p.now()
	if err := p.ledger.RegisterDrone(ctx, sn, "", ""); err != nil {
		return fmt.Errorf("register drone %s: %w", sn, err)
	}
	if _, err := p.ledger.OpenToday(ctx, sn, now, total); err != nil {
		return fmt.Errorf("open today row for %s: %w", sn, err)
	}
	if err := p.ledger.ReviseAnchorOnFirstSignal(ctx, sn, now, total); err != nil {
		return fmt.Errorf("revise anchor for %s: %w", sn, err)
	}
	if err := p.ledger.UpdateTotal(ctx, sn, now, total); err != nil {
		return fmt.Errorf("update total for %s: %w", sn, err)
	}
	return nil
}
