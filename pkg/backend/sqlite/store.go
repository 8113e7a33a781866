// Package sqlite implements backend.Backend over a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	_ "modernc.org/sqlite"

	"github.com/Suhaibinator/GOAuthBridge/pkg/authdata"
	"github.com/Suhaibinator/GOAuthBridge/pkg/backend"
)

// ErrIdentityTaken is returned when an identity is already linked to a different user.
var ErrIdentityTaken = errors.New("identity already linked to another user")

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	session_token TEXT NOT NULL DEFAULT '',
	created_at    INTEGER NOT NULL,
	updated_at    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS user_auth_data (
	user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	auth_type  TEXT NOT NULL,
	subject_id TEXT NOT NULL,
	data       TEXT NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (user_id, auth_type)
);

CREATE UNIQUE INDEX IF NOT EXISTS user_auth_data_subject
	ON user_auth_data (auth_type, subject_id);
`

// toMillis normalizes timestamps into millisecond precision for storage.
func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// Store implements backend.Backend over SQLite.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

var _ backend.Backend = (*Store)(nil)

// Open opens the SQLite store at path and applies the schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := "file:" + cleanPath + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		return nil, multierr.Append(fmt.Errorf("ping sqlite db: %w", err), sqlDB.Close())
	}

	if _, err := sqlDB.Exec(schema); err != nil {
		return nil, multierr.Append(fmt.Errorf("apply schema: %w", err), sqlDB.Close())
	}

	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

// Close releases the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// LogInWith returns the user linked to data, creating one on first login.
// The stored auth data is refreshed and a new session token is issued either way.
func (s *Store) LogInWith(ctx context.Context, authType string, data authdata.AuthData) (*backend.User, error) {
	subjectID, raw, err := encodeAuthData(data)
	if err != nil {
		return nil, err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := toMillis(s.now())
	isNew := false
	var userID string
	err = tx.QueryRowContext(ctx,
		`SELECT user_id FROM user_auth_data WHERE auth_type = ? AND subject_id = ?`,
		authType, subjectID,
	).Scan(&userID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		userID = uuid.NewString()
		isNew = true
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO users (id, created_at, updated_at) VALUES (?, ?, ?)`,
			userID, now, now,
		); err != nil {
			return nil, fmt.Errorf("insert user: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("find linked user: %w", err)
	}

	if err := upsertAuthData(ctx, tx, userID, authType, subjectID, raw, now); err != nil {
		return nil, err
	}

	sessionToken := "r:" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET session_token = ?, updated_at = ? WHERE id = ?`,
		sessionToken, now, userID,
	); err != nil {
		return nil, fmt.Errorf("update session token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit login: %w", err)
	}

	user, err := s.User(ctx, userID)
	if err != nil {
		return nil, err
	}
	user.IsNew = isNew
	return user, nil
}

// LinkWith stores data under authType on userID. A nil data unlinks.
func (s *Store) LinkWith(ctx context.Context, userID, authType string, data authdata.AuthData) error {
	if authdata.IsUnlink(data) {
		return s.UnlinkFrom(ctx, userID, authType)
	}
	subjectID, raw, err := encodeAuthData(data)
	if err != nil {
		return err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := userExists(ctx, tx, userID); err != nil {
		return err
	}

	var owner string
	err = tx.QueryRowContext(ctx,
		`SELECT user_id FROM user_auth_data WHERE auth_type = ? AND subject_id = ?`,
		authType, subjectID,
	).Scan(&owner)
	if err == nil && owner != userID {
		return fmt.Errorf("link %s: %w", authType, ErrIdentityTaken)
	}
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("find linked user: %w", err)
	}

	now := toMillis(s.now())
	if err := upsertAuthData(ctx, tx, userID, authType, subjectID, raw, now); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit link: %w", err)
	}
	return nil
}

// UnlinkFrom removes the authType identity from userID. Unlinking an unlinked user is not an error.
func (s *Store) UnlinkFrom(ctx context.Context, userID, authType string) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := userExists(ctx, tx, userID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM user_auth_data WHERE user_id = ? AND auth_type = ?`,
		userID, authType,
	); err != nil {
		return fmt.Errorf("delete auth data: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit unlink: %w", err)
	}
	return nil
}

// IsLinked reports whether userID has an identity for authType.
func (s *Store) IsLinked(ctx context.Context, userID, authType string) (bool, error) {
	var n int
	if err := s.sqlDB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM user_auth_data WHERE user_id = ? AND auth_type = ?`,
		userID, authType,
	).Scan(&n); err != nil {
		return false, fmt.Errorf("count auth data: %w", err)
	}
	return n > 0, nil
}

// User loads userID and all of its linked identities.
func (s *Store) User(ctx context.Context, userID string) (*backend.User, error) {
	user := &backend.User{ID: userID, AuthData: map[string]authdata.AuthData{}}
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT session_token FROM users WHERE id = ?`, userID,
	).Scan(&user.SessionToken)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, backend.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT auth_type, data FROM user_auth_data WHERE user_id = ?`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list auth data: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var authType, raw string
		if err := rows.Scan(&authType, &raw); err != nil {
			return nil, fmt.Errorf("scan auth data: %w", err)
		}
		var data authdata.AuthData
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			return nil, fmt.Errorf("decode %s auth data: %w", authType, err)
		}
		user.AuthData[authType] = data
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate auth data: %w", err)
	}
	return user, nil
}

func encodeAuthData(data authdata.AuthData) (subjectID string, raw []byte, err error) {
	cred, err := authdata.Decode(data)
	if err != nil {
		return "", nil, err
	}
	raw, err = json.Marshal(data)
	if err != nil {
		return "", nil, fmt.Errorf("encode auth data: %w", err)
	}
	return cred.SubjectID, raw, nil
}

func userExists(ctx context.Context, tx *sql.Tx, userID string) error {
	var id string
	err := tx.QueryRowContext(ctx, `SELECT id FROM users WHERE id = ?`, userID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return backend.ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}
	return nil
}

func upsertAuthData(ctx context.Context, tx *sql.Tx, userID, authType, subjectID string, raw []byte, now int64) error {
	if _, err := tx.ExecContext(ctx, `
INSERT INTO user_auth_data (user_id, auth_type, subject_id, data, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (user_id, auth_type) DO UPDATE SET
	subject_id = excluded.subject_id,
	data       = excluded.data,
	updated_at = excluded.updated_at`,
		userID, authType, subjectID, string(raw), now,
	); err != nil {
		return fmt.Errorf("upsert auth data: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET updated_at = ? WHERE id = ?`, now, userID,
	); err != nil {
		return fmt.Errorf("touch user: %w", err)
	}
	return nil
}
