// Package supabase stores budgetly data in a hosted Postgres through the
// PostgREST API. The expected tables are described in schema.sql.
package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"budgetly/internal/core"
	"budgetly/internal/storage"

	"github.com/google/uuid"
	"github.com/supabase-community/supabase-go"
)

const (
	tableUsers       = "users"
	tableCredentials = "credentials"
	tableExpenses    = "expenses"
)

type Repository struct {
	client *supabase.Client
}

var _ storage.Repository = (*Repository)(nil)

func New(url, key string) (*Repository, error) {
	client, err := supabase.NewClient(url, key, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}
	return &Repository{client: client}, nil
}

type userRow struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email"`
	AvatarURL   string    `json:"avatar_url"`
	Budget      float64   `json:"budget"`
	CreatedAt   time.Time `json:"created_at"`
}

type credentialsRow struct {
	Email        string    `json:"email"`
	UserID       string    `json:"user_id"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

type expenseRow struct {
	ID          string    `json:"id"`
	Seq         int64     `json:"seq,omitempty"`
	UserID      string    `json:"user_id"`
	Description string    `json:"description"`
	Amount      float64   `json:"amount"`
	Category    string    `json:"category"`
	ExpenseDate string    `json:"expense_date"`
	CreatedAt   time.Time `json:"created_at"`
}

func (r expenseRow) expense() core.Expense {
	e := core.Expense{
		ID:          r.ID,
		UserID:      r.UserID,
		Description: r.Description,
		Amount:      r.Amount,
		Category:    core.ParseCategory(r.Category),
		CreatedAt:   r.CreatedAt,
	}
	if d, err := core.ParseDate(r.ExpenseDate); err == nil {
		e.Date = d
	}
	return e
}

func (r *Repository) CreateCredentials(ctx context.Context, c storage.Credentials) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	row := credentialsRow{
		Email:        normalizeEmail(c.Email),
		UserID:       c.UserID,
		DisplayName:  c.DisplayName,
		PasswordHash: c.PasswordHash,
		CreatedAt:    c.CreatedAt,
	}
	if _, _, err := r.client.From(tableCredentials).Insert(row, false, "", "", "").Execute(); err != nil {
		if isDuplicate(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("insert credentials: %w", err)
	}
	return nil
}

func (r *Repository) FindCredentials(ctx context.Context, email string) (storage.Credentials, error) {
	var rows []credentialsRow
	if err := r.selectEq(tableCredentials, "email", normalizeEmail(email), &rows); err != nil {
		return storage.Credentials{}, fmt.Errorf("select credentials: %w", err)
	}
	if len(rows) == 0 {
		return storage.Credentials{}, storage.ErrNotFound
	}
	row := rows[0]
	return storage.Credentials{
		UserID:       row.UserID,
		Email:        row.Email,
		DisplayName:  row.DisplayName,
		PasswordHash: row.PasswordHash,
		CreatedAt:    row.CreatedAt,
	}, nil
}

func (r *Repository) GetUser(ctx context.Context, id string) (core.User, error) {
	var rows []userRow
	if err := r.selectEq(tableUsers, "id", id, &rows); err != nil {
		return core.User{}, fmt.Errorf("select user: %w", err)
	}
	if len(rows) == 0 {
		return core.User{}, storage.ErrNotFound
	}
	u := rows[0]
	return core.User{
		ID:          u.ID,
		DisplayName: u.DisplayName,
		Email:       u.Email,
		AvatarURL:   u.AvatarURL,
		Budget:      u.Budget,
		CreatedAt:   u.CreatedAt,
	}, nil
}

func (r *Repository) CreateUser(ctx context.Context, u core.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	row := userRow{
		ID:          u.ID,
		DisplayName: u.DisplayName,
		Email:       u.Email,
		AvatarURL:   u.AvatarURL,
		Budget:      u.Budget,
		CreatedAt:   u.CreatedAt,
	}
	if _, _, err := r.client.From(tableUsers).Insert(row, false, "", "", "").Execute(); err != nil {
		if isDuplicate(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}
	slog.InfoContext(ctx, "User record created in Supabase", "user_id", u.ID)
	return nil
}

func (r *Repository) UpdateBudget(ctx context.Context, userID string, budget float64) error {
	data, _, err := r.client.From(tableUsers).
		Update(map[string]any{"budget": budget}, "representation", "").
		Eq("id", userID).
		Execute()
	if err != nil {
		return fmt.Errorf("update budget: %w", err)
	}
	return requireAffected(data)
}

func (r *Repository) ListExpenses(ctx context.Context, userID string) ([]core.Expense, error) {
	data, _, err := r.client.From(tableExpenses).
		Select("*", "", false).
		Eq("user_id", userID).
		Order("created_at", nil).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}

	var rows []expenseRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode expenses: %w", err)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.After(rows[j].CreatedAt)
		}
		return rows[i].Seq > rows[j].Seq
	})

	out := make([]core.Expense, len(rows))
	for i, row := range rows {
		out[i] = row.expense()
	}
	return out, nil
}

func (r *Repository) GetExpense(ctx context.Context, id string) (core.Expense, error) {
	var rows []expenseRow
	if err := r.selectEq(tableExpenses, "id", id, &rows); err != nil {
		return core.Expense{}, fmt.Errorf("select expense: %w", err)
	}
	if len(rows) == 0 {
		return core.Expense{}, storage.ErrNotFound
	}
	return rows[0].expense(), nil
}

func (r *Repository) CreateExpense(ctx context.Context, e core.Expense) (string, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	row := expenseRow{
		ID:          e.ID,
		UserID:      e.UserID,
		Description: e.Description,
		Amount:      e.Amount,
		Category:    string(e.Category),
		ExpenseDate: e.Date.String(),
		CreatedAt:   e.CreatedAt,
	}
	if _, _, err := r.client.From(tableExpenses).Insert(row, false, "", "", "").Execute(); err != nil {
		if isDuplicate(err) {
			return "", storage.ErrConflict
		}
		return "", fmt.Errorf("insert expense: %w", err)
	}
	slog.InfoContext(ctx, "Expense saved to Supabase", "id", e.ID, "user_id", e.UserID)
	return e.ID, nil
}

func (r *Repository) DeleteExpense(ctx context.Context, userID, id string) error {
	data, _, err := r.client.From(tableExpenses).
		Delete("representation", "").
		Eq("id", id).
		Eq("user_id", userID).
		Execute()
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	return requireAffected(data)
}

// Ping issues a minimal read to confirm the API answers.
func (r *Repository) Ping(ctx context.Context) error {
	_, _, err := r.client.From(tableUsers).Select("id", "", false).Limit(1, "").Execute()
	if err != nil {
		return fmt.Errorf("ping supabase: %w", err)
	}
	return nil
}

func (r *Repository) Close() error { return nil }

func (r *Repository) selectEq(table, column, value string, dst any) error {
	data, _, err := r.client.From(table).
		Select("*", "", false).
		Eq(column, value).
		Execute()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

// requireAffected maps an empty "representation" response to ErrNotFound.
func requireAffected(data []byte) error {
	var rows []json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if len(rows) == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// isDuplicate recognises Postgres unique_violation as reported by PostgREST.
func isDuplicate(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "23505") || strings.Contains(msg, "duplicate key")
}
