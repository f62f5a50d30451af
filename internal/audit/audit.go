// Package audit records the outcome of every verification attempt so that
// disputed attendance marks can be traced back to the match that produced them.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event is a single verification attempt, matched or not.
type Event struct {
	ID          string    `json:"id"`
	RequestID   string    `json:"request_id,omitempty"`
	Tenant      string    `json:"tenant"`
	SubjectKind string    `json:"subject_kind"`
	Matched     bool      `json:"matched"`
	CandidateID string    `json:"candidate_id,omitempty"`
	Candidate   string    `json:"candidate,omitempty"`
	Score       int       `json:"score"`
	Session     string    `json:"session,omitempty"`
	Outcome     string    `json:"outcome,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	DryRun      bool      `json:"dry_run,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewEvent stamps a fresh event with an id and timestamp.
func NewEvent(tenant, subjectKind string) Event {
	return Event{
		ID:          uuid.NewString(),
		Tenant:      tenant,
		SubjectKind: subjectKind,
		Timestamp:   time.Now().UTC(),
	}
}

// Sink receives audit events. Implementations must not block the
// verification path longer than necessary.
type Sink interface {
	Record(ctx context.Context, event Event) error
}

// LogSink writes events to the structured log.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Record(_ context.Context, event Event) error {
	s.logger.Info("verification audited",
		zap.String("audit_id", event.ID),
		zap.String("request_id", event.RequestID),
		zap.String("tenant", event.Tenant),
		zap.String("subject_kind", event.SubjectKind),
		zap.Bool("matched", event.Matched),
		zap.String("candidate_id", event.CandidateID),
		zap.Int("score", event.Score),
		zap.String("outcome", event.Outcome),
		zap.String("reason", event.Reason),
	)
	return nil
}

// RedisSink pushes events as JSON onto a Redis list so that a separate
// consumer can archive them.
type RedisSink struct {
	client *redis.Client
	queue  string
}

func NewRedisSink(client *redis.Client, queue string) *RedisSink {
	return &RedisSink{client: client, queue: queue}
}

func (s *RedisSink) Record(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("could not serialize audit event: %w", err)
	}

	if err := s.client.LPush(ctx, s.queue, payload).Err(); err != nil {
		return fmt.Errorf("could not push audit event to %s: %w", s.queue, err)
	}

	return nil
}

// MultiSink fans an event out to several sinks. The first failure is
// returned but every sink still gets the event.
type MultiSink struct {
	sinks []Sink
}

func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (s *MultiSink) Record(ctx context.Context, event Event) error {
	var firstErr error
	for _, sink := range s.sinks {
		if err := sink.Record(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
