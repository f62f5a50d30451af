// Package gallery defines the candidate gallery contract and the adapter that
// reads candidates from the school-management directory database.
package gallery

import (
	"context"
	"iter"
)

// Kind distinguishes the two candidate populations.
type Kind string

const (
	KindStudent Kind = "STUDENT"
	KindStaff   Kind = "STAFF"
)

// Reference image sources. Both are equal-weight references for matching;
// the source is carried so audit and UI can name the winning photo.
const (
	SourceDocument = "DOCUMENT" // filed photograph
	SourceAvatar   = "AVATAR"   // account avatar
)

// ReferenceImage is one stored photo usable for matching a candidate.
type ReferenceImage struct {
	Path   string // absolute path under the media root
	Source string // SourceDocument or SourceAvatar
	Handle string // stable handle/URL shown to the operator for confirmation
}

// Candidate is a student or staff member eligible to be matched.
type Candidate struct {
	ID   string
	Name string
	Kind Kind
}

// Entry pairs a candidate with its available reference images. A candidate
// can have zero images; the matcher skips those and counts them separately.
type Entry struct {
	Candidate Candidate
	Images    []ReferenceImage
}

// Provider yields active candidates for a tenant, optionally restricted to an
// explicit candidate-id allow-list. Iteration order must be stable because it
// is the documented tie-break for equal match scores.
type Provider interface {
	Candidates(ctx context.Context, tenant string, kind Kind, allowIDs []string) iter.Seq2[Entry, error]
}
