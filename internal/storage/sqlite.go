package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"budgetly/internal/core"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

type SQLiteRepository struct {
	db *sql.DB
}

var _ Repository = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer at a time keeps commit order equal to call order.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) CreateCredentials(ctx context.Context, c Credentials) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO credentials (email, user_id, display_name, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		strings.TrimSpace(c.Email), c.UserID, c.DisplayName, c.PasswordHash, c.CreatedAt.UnixMilli())
	if err != nil {
		if isConstraint(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert credentials: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) FindCredentials(ctx context.Context, email string) (Credentials, error) {
	var (
		c       Credentials
		created int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT email, user_id, display_name, password_hash, created_at FROM credentials WHERE email = ?`,
		strings.TrimSpace(email)).Scan(&c.Email, &c.UserID, &c.DisplayName, &c.PasswordHash, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Credentials{}, ErrNotFound
	}
	if err != nil {
		return Credentials{}, fmt.Errorf("select credentials: %w", err)
	}
	c.CreatedAt = time.UnixMilli(created)
	return c, nil
}

func (r *SQLiteRepository) GetUser(ctx context.Context, id string) (core.User, error) {
	var (
		u       core.User
		created int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, display_name, email, avatar_url, budget, created_at FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.DisplayName, &u.Email, &u.AvatarURL, &u.Budget, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, ErrNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("select user: %w", err)
	}
	u.CreatedAt = time.UnixMilli(created)
	return u, nil
}

func (r *SQLiteRepository) CreateUser(ctx context.Context, u core.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, display_name, email, avatar_url, budget, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.DisplayName, u.Email, u.AvatarURL, u.Budget, u.CreatedAt.UnixMilli())
	if err != nil {
		if isConstraint(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}
	slog.InfoContext(ctx, "User record created", "user_id", u.ID, "budget", u.Budget)
	return nil
}

func (r *SQLiteRepository) UpdateBudget(ctx context.Context, userID string, budget float64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET budget = ? WHERE id = ?`, budget, userID)
	if err != nil {
		return fmt.Errorf("update budget: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update budget: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) ListExpenses(ctx context.Context, userID string) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, description, amount, category, expense_date, created_at
		 FROM expenses WHERE user_id = ? ORDER BY created_at DESC, rowid DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	out := []core.Expense{}
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) GetExpense(ctx context.Context, id string) (core.Expense, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, description, amount, category, expense_date, created_at FROM expenses WHERE id = ?`, id)
	e, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, ErrNotFound
	}
	return e, err
}

func (r *SQLiteRepository) CreateExpense(ctx context.Context, e core.Expense) (string, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO expenses (id, user_id, description, amount, category, expense_date, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.Description, e.Amount, string(e.Category), e.Date.String(), e.CreatedAt.UnixMilli())
	if err != nil {
		if isConstraint(err) {
			return "", ErrConflict
		}
		return "", fmt.Errorf("insert expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense saved to SQLite",
		"id", e.ID,
		"user_id", e.UserID,
		"amount", e.Amount,
		"date", e.Date.String())

	return e.ID, nil
}

func (r *SQLiteRepository) DeleteExpense(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExpense(s scanner) (core.Expense, error) {
	var (
		e        core.Expense
		category string
		date     string
		created  int64
	)
	if err := s.Scan(&e.ID, &e.UserID, &e.Description, &e.Amount, &category, &date, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Expense{}, err
		}
		return core.Expense{}, fmt.Errorf("scan expense: %w", err)
	}
	e.Category = core.ParseCategory(category)
	// An unreadable stored date is kept as the zero date and skipped by
	// every period filter.
	if d, err := core.ParseDate(date); err == nil {
		e.Date = d
	}
	e.CreatedAt = time.UnixMilli(created)
	return e, nil
}

func isConstraint(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return true
	}
	return false
}
