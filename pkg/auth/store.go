package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// ErrSessionNotFound is returned for sessions that are unknown or expired.
var ErrSessionNotFound = errors.New("session not found")

// ErrSubjectNotFound is returned when a subject row does not exist.
var ErrSubjectNotFound = errors.New("subject not found")

// SessionAuthenticator maps session ids to subjects. Sessions live in
// Redis under "session:<id>:subject"; the subject row itself is read
// from the database so deactivation takes effect immediately.
type SessionAuthenticator struct {
	db     *sql.DB
	client *redis.Client
}

// NewSessionAuthenticator creates a session authenticator.
func NewSessionAuthenticator(db *sql.DB, client *redis.Client) *SessionAuthenticator {
	return &SessionAuthenticator{db: db, client: client}
}

// SubjectBySession resolves the subject a session authenticates.
func (a *SessionAuthenticator) SubjectBySession(ctx context.Context, sessionID string) (*Subject, error) {
	subjectID, err := a.client.Get(ctx, sessionKey(sessionID)).Int64()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up session: %w", err)
	}
	return a.SubjectByID(ctx, subjectID)
}

// SubjectByID loads one subject row.
func (a *SessionAuthenticator) SubjectByID(ctx context.Context, id int64) (*Subject, error) {
	query := `
		SELECT id, email, role_kind, role_name, custom_role_id, is_active, created_at, updated_at
		FROM subjects WHERE id = $1
	`
	var s Subject
	var roleKind, roleName sql.NullString
	var customRoleID sql.NullInt64
	err := a.db.QueryRowContext(ctx, query, id).Scan(
		&s.ID, &s.Email, &roleKind, &roleName, &customRoleID, &s.IsActive, &s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSubjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load subject %d: %w", id, err)
	}

	switch RoleKind(roleKind.String) {
	case RoleKindSystem:
		s.Role = SystemRoleRef(SystemRole(roleName.String))
	case RoleKindCustom:
		s.Role = CustomRoleRef(customRoleID.Int64)
	}
	return &s, nil
}

func sessionKey(sessionID string) string {
	return "session:" + sessionID + ":subject"
}
