package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ayo6706/kenyabank/internal/domain"
	"github.com/ayo6706/kenyabank/internal/models"
	"github.com/google/uuid"
)

const userColumns = `id, email, full_name, phone, password_hash, role, is_active,
	login_attempts, locked_until, last_login, created_at`

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	u := &models.User{}
	err := row.Scan(&u.ID, &u.Email, &u.FullName, &u.Phone, &u.PasswordHash, &u.Role, &u.IsActive,
		&u.LoginAttempts, &u.LockedUntil, &u.LastLogin, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (q *Queries) CreateUser(ctx context.Context, user *models.User) error {
	query := `INSERT INTO users (id, email, full_name, phone, password_hash, role, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW()) RETURNING created_at`
	err := q.db.QueryRow(ctx, query, user.ID, user.Email, user.FullName, user.Phone, user.PasswordHash,
		user.Role, user.IsActive).Scan(&user.CreatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return domain.ErrDuplicateUser
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (q *Queries) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, err := scanUser(q.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := scanUser(q.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

// RecordLoginFailure bumps the failed-attempt counter and sets locked_until
// once maxAttempts is reached. It returns the new counter and lock.
func (q *Queries) RecordLoginFailure(ctx context.Context, id uuid.UUID, maxAttempts int, lockUntil time.Time) (int, *time.Time, error) {
	var (
		attempts int
		locked   *time.Time
	)
	err := q.db.QueryRow(ctx, `
		UPDATE users SET
			login_attempts = login_attempts + 1,
			locked_until = CASE WHEN login_attempts + 1 >= $2 THEN $3::timestamptz ELSE locked_until END
		WHERE id = $1
		RETURNING login_attempts, locked_until`, id, maxAttempts, lockUntil).Scan(&attempts, &locked)
	if err != nil {
		return 0, nil, fmt.Errorf("record login failure: %w", err)
	}
	return attempts, locked, nil
}

func (q *Queries) RecordLoginSuccess(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := q.db.Exec(ctx, `UPDATE users SET login_attempts = 0, locked_until = NULL, last_login = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("record login success: %w", err)
	}
	return nil
}

func (q *Queries) InsertLoginAttempt(ctx context.Context, a models.LoginAttempt) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO login_attempts (email, ip_address, user_agent, success, failure_reason, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())`, a.Email, a.IPAddress, a.UserAgent, a.Success, a.FailureReason)
	if err != nil {
		return fmt.Errorf("insert login attempt: %w", err)
	}
	return nil
}

func (q *Queries) ListUsers(ctx context.Context, f models.UserFilter) ([]models.User, int64, error) {
	var (
		conds []string
		args  []any
	)
	if f.Role != "" {
		args = append(args, f.Role)
		conds = append(conds, fmt.Sprintf("role = $%d", len(args)))
	}
	if f.Active != nil {
		args = append(args, *f.Active)
		conds = append(conds, fmt.Sprintf("is_active = $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int64
	if err := q.db.QueryRow(ctx, `SELECT COUNT(*) FROM users`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	args = append(args, f.Limit, f.Offset)
	query := fmt.Sprintf(`SELECT %s FROM users%s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		userColumns, where, len(args)-1, len(args))
	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]models.User, 0, f.Limit)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate users: %w", err)
	}
	return users, total, nil
}
