// Package verify ties the pipeline together: decode the probe photo, extract
// its features, rank the gallery and commit the attendance mark.
package verify

import (
	"context"
	"errors"
	"image"
	"iter"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/attendance-kiosk/internal/attendance"
	"github.com/kozaktomas/attendance-kiosk/internal/audit"
	"github.com/kozaktomas/attendance-kiosk/internal/features"
	"github.com/kozaktomas/attendance-kiosk/internal/gallery"
	"github.com/kozaktomas/attendance-kiosk/internal/match"
)

// Reason explains a non-match.
type Reason string

const (
	ReasonNoFeatures     Reason = "no_features"
	ReasonNoCandidates   Reason = "no_candidates"
	ReasonBelowThreshold Reason = "below_threshold"
)

// Request is one verification attempt from a kiosk.
type Request struct {
	Tenant    string
	Kind      gallery.Kind
	Payload   []byte // raw probe image bytes
	Session   attendance.Session
	AllowIDs  []string // optional candidate-id allow-list
	Remark    string
	RequestID string
	DryRun    bool
	At        time.Time // zero means now
}

// Match describes the accepted candidate.
type Match struct {
	CandidateID string `json:"candidate_id"`
	Name        string `json:"name"`
	Score       int    `json:"score"`
	PhotoHandle string `json:"photo_handle,omitempty"`
	PhotoSource string `json:"photo_source,omitempty"`
}

// RankedEntry is one gallery candidate's score, strongest first.
type RankedEntry struct {
	CandidateID string `json:"candidate_id"`
	Name        string `json:"name"`
	Score       int    `json:"score"`
}

// Attendance is the persistence half of the result. It is reported
// independently of the match so a storage failure never masks a
// successful identification.
type Attendance struct {
	Outcome attendance.Outcome `json:"outcome,omitempty"`
	Date    string             `json:"date,omitempty"`
	Session attendance.Session `json:"session,omitempty"`
	Error   string             `json:"error,omitempty"`
}

// Response is the full verification result.
type Response struct {
	Matched    bool          `json:"matched"`
	Match      *Match        `json:"match,omitempty"`
	Ranked     []RankedEntry `json:"ranked,omitempty"`
	Reason     Reason        `json:"reason,omitempty"`
	Skipped    int           `json:"skipped_without_photos,omitempty"`
	Attendance *Attendance   `json:"attendance,omitempty"`
}

// Decoder turns raw bytes into the grayscale raster the extractor wants.
type Decoder interface {
	Decode(payload []byte) (*image.Gray, error)
}

// Extractor computes descriptors for a raster.
type Extractor interface {
	Extract(img *image.Gray) (features.DescriptorSet, error)
}

// DescriptorCache answers descriptors for a reference photo by path.
type DescriptorCache interface {
	Descriptors(path string) (features.DescriptorSet, error)
}

// Committer persists an attendance mark.
type Committer interface {
	Commit(ctx context.Context, key attendance.Key, subjectName, remark string) (attendance.Outcome, error)
}

// SessionResolver maps a local wall-clock time to a session.
type SessionResolver interface {
	ResolveSession(t time.Time) string
}

// Verifier runs the verification pipeline.
type Verifier struct {
	cfg       match.Config
	decoder   Decoder
	extractor Extractor
	cache     DescriptorCache
	provider  gallery.Provider
	committer Committer
	sink      audit.Sink
	sessions  SessionResolver
	location  *time.Location
	logger    *zap.Logger
	maxRanked int
}

func New(
	cfg match.Config,
	decoder Decoder,
	extractor Extractor,
	cache DescriptorCache,
	provider gallery.Provider,
	committer Committer,
	sink audit.Sink,
	sessions SessionResolver,
	location *time.Location,
	logger *zap.Logger,
) *Verifier {
	if location == nil {
		location = time.Local
	}
	return &Verifier{
		cfg:       cfg,
		decoder:   decoder,
		extractor: extractor,
		cache:     cache,
		provider:  provider,
		committer: committer,
		sink:      sink,
		sessions:  sessions,
		location:  location,
		logger:    logger,
		maxRanked: 5,
	}
}

// Verify identifies the person on the probe photo and, unless DryRun is set,
// marks them present. Decode failures are returned as errors; everything past
// a decodable image is reported in the Response.
func (v *Verifier) Verify(ctx context.Context, req Request) (*Response, error) {
	event := audit.NewEvent(req.Tenant, string(req.Kind))
	event.RequestID = req.RequestID
	event.DryRun = req.DryRun

	img, err := v.decoder.Decode(req.Payload)
	if err != nil {
		return nil, err
	}

	probe, err := v.extractor.Extract(img)
	if errors.Is(err, features.ErrNoFeatures) {
		resp := &Response{Reason: ReasonNoFeatures}
		v.audit(ctx, event, resp)
		return resp, nil
	}
	if err != nil {
		return nil, err
	}

	ranked, skipped, err := match.Rank(v.cfg, probe, v.galleryCandidates(ctx, req))
	if err != nil {
		return nil, err
	}

	// An empty ranking means nobody was comparable: the gallery was empty or
	// every candidate lacked a usable reference photo.
	if len(ranked) == 0 {
		resp := &Response{Reason: ReasonNoCandidates, Skipped: skipped}
		v.audit(ctx, event, resp)
		return resp, nil
	}

	resp := &Response{Skipped: skipped}
	for i, score := range ranked {
		if i == v.maxRanked {
			break
		}
		resp.Ranked = append(resp.Ranked, RankedEntry{
			CandidateID: score.ID,
			Name:        score.Name,
			Score:       score.Score,
		})
	}

	best, ok := v.cfg.Accepted(ranked)
	if !ok {
		resp.Reason = ReasonBelowThreshold
		v.audit(ctx, event, resp)
		return resp, nil
	}

	resp.Matched = true
	resp.Match = &Match{
		CandidateID: best.ID,
		Name:        best.Name,
		Score:       best.Score,
		PhotoHandle: best.BestRef.Handle,
		PhotoSource: best.BestRef.Source,
	}

	now := req.At
	if now.IsZero() {
		now = time.Now()
	}
	now = now.In(v.location)

	session := req.Session
	if session == "" {
		session = attendance.Session(v.sessions.ResolveSession(now))
	}

	key := attendance.Key{
		Tenant:      req.Tenant,
		SubjectKind: string(req.Kind),
		SubjectID:   best.ID,
		Date:        now,
		Session:     session,
	}

	resp.Attendance = &Attendance{
		Date:    key.DateString(),
		Session: session,
	}

	if !req.DryRun {
		outcome, err := v.committer.Commit(ctx, key, best.Name, req.Remark)
		if err != nil {
			// The identification stands even when the mark does not land.
			resp.Attendance.Error = err.Error()
			v.logger.Error("attendance commit failed",
				zap.String("tenant", req.Tenant),
				zap.String("candidate_id", best.ID),
				zap.Error(err))
		} else {
			resp.Attendance.Outcome = outcome
		}
	}

	v.audit(ctx, event, resp)
	return resp, nil
}

// galleryCandidates adapts the directory's entries into scored candidates,
// resolving cached descriptors lazily per reference photo. Unreadable photos
// are logged and skipped rather than failing the whole attempt.
func (v *Verifier) galleryCandidates(ctx context.Context, req Request) iter.Seq2[match.Candidate, error] {
	entries := v.provider.Candidates(ctx, req.Tenant, req.Kind, req.AllowIDs)
	return func(yield func(match.Candidate, error) bool) {
		for entry, err := range entries {
			if err != nil {
				yield(match.Candidate{}, err)
				return
			}

			candidate := match.Candidate{
				ID:   entry.Candidate.ID,
				Name: entry.Candidate.Name,
			}
			for _, img := range entry.Images {
				descriptors, err := v.cache.Descriptors(img.Path)
				if err != nil {
					v.logger.Warn("reference photo unreadable",
						zap.String("candidate_id", entry.Candidate.ID),
						zap.String("path", img.Path),
						zap.Error(err))
					continue
				}
				if len(descriptors) == 0 {
					continue
				}
				candidate.Refs = append(candidate.Refs, match.Reference{
					Handle:      img.Handle,
					Source:      img.Source,
					Descriptors: descriptors,
				})
			}

			if !yield(candidate, nil) {
				return
			}
		}
	}
}

func (v *Verifier) audit(ctx context.Context, event audit.Event, resp *Response) {
	event.Matched = resp.Matched
	event.Reason = string(resp.Reason)
	if resp.Match != nil {
		event.CandidateID = resp.Match.CandidateID
		event.Candidate = resp.Match.Name
		event.Score = resp.Match.Score
	}
	if resp.Attendance != nil {
		event.Session = string(resp.Attendance.Session)
		event.Outcome = string(resp.Attendance.Outcome)
	}

	if err := v.sink.Record(ctx, event); err != nil {
		v.logger.Warn("audit sink failed", zap.String("audit_id", event.ID), zap.Error(err))
	}
}
