// Package directory resolves platform identities for event producers. It
// only reads tables owned by the wider platform; nothing here migrates or
// mutates them.
package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/talentbridge/platform/internal/db"
)

// Lookup errors callers branch on.
var (
	ErrStudentNotFound  = errors.New("no student matches that name")
	ErrAmbiguousStudent = errors.New("more than one student matches that name")
)

// Student is the slice of a student record that event producers need.
type Student struct {
	ID       int64  `json:"id"`
	FullName string `json:"full_name"`
}

// Directory resolves names to platform identities.
type Directory struct {
	db     *db.DB
	logger *zap.Logger
}

// New creates a Postgres-backed directory.
func New(database *db.DB, logger *zap.Logger) *Directory {
	return &Directory{
		db:     database,
		logger: logger,
	}
}

// FindStudentByName resolves a candidate name to exactly one student.
// Matching is case-insensitive and ignores surrounding whitespace. Zero
// matches and multiple matches are distinct errors so producers can report
// them differently.
func (d *Directory) FindStudentByName(ctx context.Context, name string) (*Student, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return nil, ErrStudentNotFound
	}

	query := `
		SELECT id, full_name
		FROM students
		WHERE LOWER(TRIM(full_name)) = LOWER($1)
		LIMIT 2
	`

	rows, err := d.db.Pool().Query(ctx, query, trimmed)
	if err != nil {
		return nil, fmt.Errorf("query students: %w", err)
	}
	defer rows.Close()

	var matches []*Student
	for rows.Next() {
		var s Student
		if err := rows.Scan(&s.ID, &s.FullName); err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		matches = append(matches, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate students: %w", err)
	}

	switch len(matches) {
	case 0:
		return nil, ErrStudentNotFound
	case 1:
		return matches[0], nil
	default:
		d.logger.Warn("ambiguous student name", zap.String("name", trimmed))
		return nil, ErrAmbiguousStudent
	}
}
