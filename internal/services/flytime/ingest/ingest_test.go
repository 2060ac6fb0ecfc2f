package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/skyfleet/flytime/internal/services/flytime/storage"
)

func TestHandleMessageAppliesWriteSequence(t *testing.T) {
	ledger := &recordingLedger{}
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	processor := NewProcessor(ledger, func() time.Time { return now })

	payload := []byte(`{"data":{"osd":{"total_flight_time": 120.6}}}`)
	if err := processor.HandleMessage(context.Background(), "thing/product/ABC123/osd", payload); err != nil {
		t.Fatalf("handle message: %v", err)
	}

	want := []string{"register", "open", "revise", "update"}
	if len(ledger.ops) != len(want) {
		t.Fatalf("ops = %v, want %v", ledger.ops, want)
	}
	for i := range want {
		if ledger.ops[i] != want[i] {
			t.Fatalf("ops[%d] = %q, want %q", i, ledger.ops[i], want[i])
		}
	}
	if ledger.sn != "ABC123" {
		t.Fatalf("sn = %q, want ABC123", ledger.sn)
	}
	if ledger.total != 121 {
		t.Fatalf("total = %d, want 121 (rounded)", ledger.total)
	}
	if !ledger.now.Equal(now) {
		t.Fatalf("now = %v, want %v", ledger.now, now)
	}
}

func TestHandleMessageDropsUndecodable(t *testing.T) {
	ledger := &recordingLedger{}
	processor := NewProcessor(ledger, nil)

	cases := []struct {
		name    string
		topic   string
		payload string
	}{
		{name: "foreign topic", topic: "foo/bar", payload: `{"total_flight_time": 5}`},
		{name: "malformed json", topic: "thing/product/ABC123/osd", payload: `{"data":`},
		{name: "no counter", topic: "thing/product/ABC123/osd", payload: `{"battery": 90}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := processor.HandleMessage(context.Background(), tc.topic, []byte(tc.payload)); err != nil {
				t.Fatalf("decode miss must not error: %v", err)
			}
			if len(ledger.ops) != 0 {
				t.Fatalf("ledger touched on decode miss: %v", ledger.ops)
			}
		})
	}
}

func TestHandleMessageSurfacesLedgerFailure(t *testing.T) {
	ledger := &recordingLedger{failOn: "open"}
	processor := NewProcessor(ledger, nil)

	err := processor.HandleMessage(
		context.Background(),
		"thing/product/ABC123/osd",
		[]byte(`{"total_flight_time": 60}`),
	)
	if err == nil {
		t.Fatal("expected ledger failure to surface")
	}
	// The sequence stops at the failing step.
	want := []string{"register", "open"}
	if len(ledger.ops) != len(want) {
		t.Fatalf("ops = %v, want %v", ledger.ops, want)
	}
}

type recordingLedger struct {
	ops    []string
	sn     string
	total  int64
	now    time.Time
	failOn string
}

func (l *recordingLedger) step(op string) error {
	l.ops = append(l.ops, op)
	if l.failOn == op {
		return errors.New("ledger unavailable")
	}
	return nil
}

func (l *recordingLedger) RegisterDrone(_ context.Context, sn, _, _ string) error {
	l.sn = sn
	return l.step("register")
}

func (l *recordingLedger) OpenToday(_ context.Context, _ string, now time.Time, initialTotal int64) (storage.FlightDay, error) {
	l.now = now
	l.total = initialTotal
	return storage.FlightDay{}, l.step("open")
}

func (l *recordingLedger) ReviseAnchorOnFirstSignal(_ context.Context, _ string, _ time.Time, _ int64) error {
	return l.step("revise")
}

func (l *recordingLedger) UpdateTotal(_ context.Context, _ string, _ time.Time, _ int64) error {
	return l.step("update")
}
