package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"dayplan/internal/planner"
)

// User is an account that owns tasks. TelegramChatID == 0 means the account
// is not linked to a chat yet; LinkCode is the one-time code consumed by
// /start <code>.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Timezone     string

	TelegramChatID int64
	LinkCode       string
	AutoPlan       bool

	CreatedAt time.Time
}

const userColumns = `id, name, email, password_hash, timezone,
	telegram_chat_id, link_code, auto_plan, created_at`

func scanUser(r rowScanner) (User, error) {
	var (
		u         User
		chat      sql.NullInt64
		code      sql.NullString
		autoPlan  int
		createdMS int64
	)
	err := r.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Timezone,
		&chat, &code, &autoPlan, &createdMS)
	if err != nil {
		return User{}, err
	}
	if chat.Valid {
		u.TelegramChatID = chat.Int64
	}
	if code.Valid {
		u.LinkCode = code.String
	}
	u.AutoPlan = autoPlan != 0
	u.CreatedAt = fromMillis(createdMS)
	return u, nil
}

func (s *Store) CreateUser(ctx context.Context, u User) (User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		u.ID, u.Name, u.Email, u.PasswordHash, u.Timezone,
		nullInt64(u.TelegramChatID), nullStr(u.LinkCode), boolInt(u.AutoPlan),
		toMillis(u.CreatedAt))
	if err != nil {
		return User{}, err
	}
	return u, nil
}

func (s *Store) userWhere(ctx context.Context, where string, args ...any) (User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+where, args...)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, planner.ErrNotFound
	}
	return u, err
}

func (s *Store) UserByID(ctx context.Context, id string) (User, error) {
	return s.userWhere(ctx, `id = ?`, id)
}

func (s *Store) UserByEmail(ctx context.Context, email string) (User, error) {
	return s.userWhere(ctx, `email = ?`, email)
}

func (s *Store) UserByChatID(ctx context.Context, chatID int64) (User, error) {
	return s.userWhere(ctx, `telegram_chat_id = ?`, chatID)
}

// SetLinkCode stores a fresh one-time Telegram link code for the user.
func (s *Store) SetLinkCode(ctx context.Context, userID, code string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET link_code = ? WHERE id = ?`, nullStr(code), userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return planner.ErrNotFound
	}
	return nil
}

// LinkTelegram consumes a link code, binding the chat to the account.
func (s *Store) LinkTelegram(ctx context.Context, code string, chatID int64) (User, error) {
	if code == "" {
		return User{}, planner.ErrNotFound
	}
	u, err := s.userWhere(ctx, `link_code = ?`, code)
	if err != nil {
		return User{}, err
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE users SET telegram_chat_id = ?, link_code = NULL WHERE id = ?`,
		chatID, u.ID)
	if err != nil {
		return User{}, err
	}
	u.TelegramChatID = chatID
	u.LinkCode = ""
	return u, nil
}

func (s *Store) SetAutoPlan(ctx context.Context, userID string, enabled bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET auto_plan = ? WHERE id = ?`, boolInt(enabled), userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return planner.ErrNotFound
	}
	return nil
}

// ListLinkedUsers returns users with a Telegram chat bound (reminder jobs).
func (s *Store) ListLinkedUsers(ctx context.Context) ([]User, error) {
	return s.listUsers(ctx, `telegram_chat_id IS NOT NULL`)
}

// ListAutoPlanUsers returns linked users who opted into the daily auto-plan.
func (s *Store) ListAutoPlanUsers(ctx context.Context) ([]User, error) {
	return s.listUsers(ctx, `auto_plan = 1`)
}

func (s *Store) listUsers(ctx context.Context, where string) ([]User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+where+` ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func nullStr(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullInt64(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}
