package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"go.uber.org/zap"
)

type recordingSink struct {
	events []Event
	err    error
}

func (s *recordingSink) Record(_ context.Context, event Event) error {
	s.events = append(s.events, event)
	return s.err
}

func TestNewEvent(t *testing.T) {
	event := NewEvent("springfield-high", "STUDENT")

	if event.ID == "" {
		t.Error("expected a generated id")
	}
	if event.Tenant != "springfield-high" {
		t.Errorf("tenant = %q", event.Tenant)
	}
	if event.SubjectKind != "STUDENT" {
		t.Errorf("subject kind = %q", event.SubjectKind)
	}
	if event.Timestamp.IsZero() {
		t.Error("expected a timestamp")
	}

	other := NewEvent("springfield-high", "STUDENT")
	if other.ID == event.ID {
		t.Error("two events share an id")
	}
}

func TestEventJSONOmitsEmptyFields(t *testing.T) {
	event := NewEvent("springfield-high", "STUDENT")
	event.Reason = "no_features"

	payload, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if _, ok := fields["candidate_id"]; ok {
		t.Error("empty candidate_id should be omitted")
	}
	if fields["reason"] != "no_features" {
		t.Errorf("reason = %v", fields["reason"])
	}
}

func TestLogSinkRecord(t *testing.T) {
	sink := NewLogSink(zap.NewNop())
	if err := sink.Record(context.Background(), NewEvent("t", "STUDENT")); err != nil {
		t.Errorf("log sink should not fail: %v", err)
	}
}

func TestMultiSinkFansOut(t *testing.T) {
	first := &recordingSink{}
	second := &recordingSink{}
	multi := NewMultiSink(first, second)

	event := NewEvent("t", "STAFF")
	if err := multi.Record(context.Background(), event); err != nil {
		t.Fatalf("record failed: %v", err)
	}

	if len(first.events) != 1 || len(second.events) != 1 {
		t.Errorf("expected both sinks to receive the event, got %d and %d", len(first.events), len(second.events))
	}
	if first.events[0].ID != event.ID {
		t.Error("sink received a different event")
	}
}

func TestMultiSinkKeepsGoingOnFailure(t *testing.T) {
	boom := errors.New("redis down")
	failing := &recordingSink{err: boom}
	healthy := &recordingSink{}
	multi := NewMultiSink(failing, healthy)

	err := multi.Record(context.Background(), NewEvent("t", "STUDENT"))
	if !errors.Is(err, boom) {
		t.Errorf("expected the first failure, got %v", err)
	}
	if len(healthy.events) != 1 {
		t.Error("healthy sink was skipped after a failure")
	}
}
