package gallery

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// Directory reads candidates from the school-management application's
// MySQL/MariaDB database. Access is strictly read-only: the directory owns
// the candidate records, this subsystem only matches against them.
type Directory struct {
	db       *sql.DB
	mediaDir string
}

// NewDirectory opens a read-only connection pool into the directory database.
func NewDirectory(dsn, mediaDir string) (*Directory, error) {
	if dsn == "" {
		return nil, errors.New("directory DSN is required")
	}
	if mediaDir == "" {
		return nil, errors.New("media directory is required")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open directory database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping directory database: %w", err)
	}

	return &Directory{db: db, mediaDir: mediaDir}, nil
}

// Close closes the connection pool.
func (d *Directory) Close() error {
	if d.db != nil {
		if err := d.db.Close(); err != nil {
			return fmt.Errorf("closing directory database: %w", err)
		}
	}
	return nil
}

// candidateQuery returns the directory query for a candidate kind. Both
// tables expose the same projection: id, display name, filed photograph path,
// account avatar path. Only active candidates are eligible.
func candidateQuery(kind Kind) (string, error) {
	switch kind {
	case KindStudent:
		return `
			SELECT id, full_name, photo_path, avatar_path
			FROM students
			WHERE tenant = ? AND status = 'ACTIVE'`, nil
	case KindStaff:
		return `
			SELECT id, full_name, photo_path, avatar_path
			FROM staff
			WHERE tenant = ? AND employment_status = 'ACTIVE'`, nil
	default:
		return "", fmt.Errorf("unknown candidate kind %q", kind)
	}
}

// buildCandidateQuery assembles the final candidate query and its bind
// arguments. A non-empty allow-list narrows the query itself so excluded
// candidates never leave the database.
func buildCandidateQuery(kind Kind, tenant string, allowIDs []string) (string, []any, error) {
	query, err := candidateQuery(kind)
	if err != nil {
		return "", nil, err
	}

	args := []any{tenant}
	if len(allowIDs) > 0 {
		query += " AND id IN (?" + strings.Repeat(",?", len(allowIDs)-1) + ")"
		for _, id := range allowIDs {
			args = append(args, id)
		}
	}
	query += " ORDER BY id"
	return query, args, nil
}

// Candidates yields active candidates for the tenant in ascending id order.
// When allowIDs is non-empty only those candidates are yielded. The sequence
// is lazy: rows are streamed while the caller iterates.
func (d *Directory) Candidates(ctx context.Context, tenant string, kind Kind, allowIDs []string) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		query, args, err := buildCandidateQuery(kind, tenant, allowIDs)
		if err != nil {
			yield(Entry{}, err)
			return
		}

		rows, err := d.db.QueryContext(ctx, query, args...)
		if err != nil {
			yield(Entry{}, fmt.Errorf("query %s candidates: %w", strings.ToLower(string(kind)), err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var (
				id, name   string
				photoPath  sql.NullString
				avatarPath sql.NullString
			)
			if err := rows.Scan(&id, &name, &photoPath, &avatarPath); err != nil {
				yield(Entry{}, fmt.Errorf("scan candidate row: %w", err))
				return
			}

			entry := Entry{Candidate: Candidate{ID: id, Name: name, Kind: kind}}
			if photoPath.Valid && photoPath.String != "" {
				entry.Images = append(entry.Images, d.referenceImage(photoPath.String, SourceDocument))
			}
			if avatarPath.Valid && avatarPath.String != "" {
				entry.Images = append(entry.Images, d.referenceImage(avatarPath.String, SourceAvatar))
			}

			if !yield(entry, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(Entry{}, fmt.Errorf("iterate candidates: %w", err))
		}
	}
}

// referenceImage resolves a directory-relative media path into a reference.
func (d *Directory) referenceImage(rel, source string) ReferenceImage {
	return ReferenceImage{
		Path:   filepath.Join(d.mediaDir, filepath.FromSlash(rel)),
		Source: source,
		Handle: "/media/" + strings.TrimPrefix(rel, "/"),
	}
}

// ResolveIDsByName returns the ids of active candidates whose normalized name
// matches the given one. Used by the CLI so operators can pass names instead
// of opaque ids.
func (d *Directory) ResolveIDsByName(ctx context.Context, tenant string, kind Kind, name string) ([]string, error) {
	want := NormalizeName(name)
	var ids []string
	for entry, err := range d.Candidates(ctx, tenant, kind, nil) {
		if err != nil {
			return nil, err
		}
		if NormalizeName(entry.Candidate.Name) == want {
			ids = append(ids, entry.Candidate.ID)
		}
	}
	return ids, nil
}
