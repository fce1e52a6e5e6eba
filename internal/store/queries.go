package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
)

// CreateUser inserts a user. Emails are compared case-insensitively.
func (db *DB) CreateUser(ctx context.Context, email, fullName, hashedPassword string) (User, error) {
	u := User{
		Email:          normalizeEmail(email),
		FullName:       fullName,
		HashedPassword: hashedPassword,
		IsActive:       true,
		CreatedAt:      time.Now().UTC(),
	}
	res, err := db.ExecContext(ctx,
		`INSERT INTO users (email, full_name, hashed_password, is_active, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.Email, u.FullName, u.HashedPassword, u.IsActive, u.CreatedAt)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return User{}, ErrEmailTaken
		}
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	if u.ID, err = res.LastInsertId(); err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// UserByEmail looks up a user.
func (db *DB) UserByEmail(ctx context.Context, email string) (User, error) {
	var u User
	err := db.QueryRowContext(ctx,
		`SELECT id, email, full_name, hashed_password, is_active, created_at FROM users WHERE email = ?`,
		normalizeEmail(email)).
		Scan(&u.ID, &u.Email, &u.FullName, &u.HashedPassword, &u.IsActive, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("select user: %w", err)
	}
	return u, nil
}

// CreateSession inserts a pending session and its opening system message.
func (db *DB) CreateSession(ctx context.Context, userID int64, agentType, welcome string) (Session, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return Session{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	s := Session{UserID: userID, AgentType: agentType, Status: StatusPending, CreatedAt: now}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO interview_sessions (user_id, agent_type, status, created_at) VALUES (?, ?, ?, ?)`,
		s.UserID, s.AgentType, s.Status, s.CreatedAt)
	if err != nil {
		return Session{}, fmt.Errorf("insert session: %w", err)
	}
	if s.ID, err = res.LastInsertId(); err != nil {
		return Session{}, fmt.Errorf("insert session: %w", err)
	}

	if welcome != "" {
		m, err := insertMessage(ctx, tx, s.ID, "system", welcome, now)
		if err != nil {
			return Session{}, err
		}
		s.Messages = append(s.Messages, m)
	}

	if err := tx.Commit(); err != nil {
		return Session{}, fmt.Errorf("commit: %w", err)
	}
	return s, nil
}

// GetSession loads a session with its messages. A userID of zero skips the
// ownership check.
func (db *DB) GetSession(ctx context.Context, userID, sessionID int64) (Session, error) {
	row := db.QueryRowContext(ctx,
		`SELECT id, user_id, agent_type, status, final_outcome, created_at, completed_at
		 FROM interview_sessions WHERE id = ?`, sessionID)
	s, err := scanSession(row)
	if err != nil {
		return Session{}, err
	}
	if userID != 0 && s.UserID != userID {
		return Session{}, ErrNotFound
	}

	msgs, err := db.messages(ctx, []int64{s.ID})
	if err != nil {
		return Session{}, err
	}
	s.Messages = msgs[s.ID]
	return s, nil
}

// ListSessions returns a user's sessions, newest first, with messages.
func (db *DB) ListSessions(ctx context.Context, userID int64) ([]Session, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, user_id, agent_type, status, final_outcome, created_at, completed_at
		 FROM interview_sessions WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("select sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	var ids []int64
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
		ids = append(ids, s.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select sessions: %w", err)
	}

	msgs, err := db.messages(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range sessions {
		sessions[i].Messages = msgs[sessions[i].ID]
	}
	return sessions, nil
}

// AppendMessage adds a transcript message to a session.
func (db *DB) AppendMessage(ctx context.Context, sessionID int64, messageType, content string) (Message, error) {
	return insertMessage(ctx, db, sessionID, messageType, content, time.Now().UTC())
}

// MarkStarted moves a pending session to in_progress. Other statuses are
// left alone.
func (db *DB) MarkStarted(ctx context.Context, sessionID int64) error {
	_, err := db.ExecContext(ctx,
		`UPDATE interview_sessions SET status = ? WHERE id = ? AND status = ?`,
		StatusInProgress, sessionID, StatusPending)
	if err != nil {
		return fmt.Errorf("mark started: %w", err)
	}
	return nil
}

// CompleteSession records the final decision message and outcome.
func (db *DB) CompleteSession(ctx context.Context, sessionID int64, outcome string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`UPDATE interview_sessions SET status = ?, final_outcome = ?, completed_at = ? WHERE id = ?`,
		StatusCompleted, outcome, now, sessionID)
	if err != nil {
		return fmt.Errorf("complete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if _, err := insertMessage(ctx, tx, sessionID, "final_decision", outcome, now); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertMessage(ctx context.Context, db execer, sessionID int64, messageType, content string, at time.Time) (Message, error) {
	m := Message{SessionID: sessionID, Type: messageType, Content: content, Timestamp: at}
	res, err := db.ExecContext(ctx,
		`INSERT INTO interview_messages (session_id, message_type, content, timestamp) VALUES (?, ?, ?, ?)`,
		m.SessionID, m.Type, m.Content, m.Timestamp)
	if err != nil {
		return Message{}, fmt.Errorf("insert message: %w", err)
	}
	if m.ID, err = res.LastInsertId(); err != nil {
		return Message{}, fmt.Errorf("insert message: %w", err)
	}
	return m, nil
}

func (db *DB) messages(ctx context.Context, sessionIDs []int64) (map[int64][]Message, error) {
	out := make(map[int64][]Message, len(sessionIDs))
	if len(sessionIDs) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(sessionIDs)), ",")
	args := make([]any, len(sessionIDs))
	for i, id := range sessionIDs {
		args[i] = id
	}
	rows, err := db.QueryContext(ctx,
		`SELECT id, session_id, message_type, content, timestamp FROM interview_messages
		 WHERE session_id IN (`+placeholders+`) ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("select messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Type, &m.Content, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out[m.SessionID] = append(out[m.SessionID], m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select messages: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (Session, error) {
	var (
		s         Session
		outcome   sql.NullString
		completed sql.NullTime
	)
	err := row.Scan(&s.ID, &s.UserID, &s.AgentType, &s.Status, &outcome, &s.CreatedAt, &completed)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("scan session: %w", err)
	}
	if outcome.Valid {
		s.FinalOutcome = &outcome.String
	}
	if completed.Valid {
		t := completed.Time
		s.CompletedAt = &t
	}
	return s, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
