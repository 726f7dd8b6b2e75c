package log

import (
	"context"
	"log/slog"
	"net/http"
)

// ContextKey type for context keys
type ContextKey string

const (
	// LoggerContextKey is the context key for the logger
	LoggerContextKey ContextKey = "logger"
)

// FromContext extracts a logger from the request context
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(LoggerContextKey).(*Logger); ok {
		return logger
	}
	// Return default logger if not found
	return &Logger{
		Logger:    slog.Default(),
		component: "unknown",
	}
}

// ComponentMiddleware creates middleware that adds component context to the logger
func ComponentMiddleware(component string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Get logger from context and add component
			logger := FromContext(r.Context()).WithComponent(component)

			// Update context with component logger
			ctx := context.WithValue(r.Context(), LoggerContextKey, logger)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// StructuredLogger provides structured logging methods with context awareness
type StructuredLogger struct {
	logger *Logger
}

// NewStructuredLogger creates a new structured logger
func NewStructuredLogger(logger *Logger) *StructuredLogger {
	return &StructuredLogger{
		logger: logger,
	}
}

// LogHTTPStart logs the start of an HTTP request
func (sl *StructuredLogger) LogHTTPStart(ctx context.Context, r *http.Request, clientIP string) {
	fields := NewFields().
		WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("User-Agent"), r.Header.Get("Referer")).
		WithClientIP(clientIP)
	sl.defaultComponent(fields, ComponentHTTP)

	sl.emit(ctx, slog.LevelInfo, "HTTP request started", fields)
}

// LogHTTPEnd logs the completion of an HTTP request
func (sl *StructuredLogger) LogHTTPEnd(ctx context.Context, r *http.Request, statusCode int, durationMs int64, clientIP string) {
	level := slog.LevelInfo
	if statusCode >= 400 && statusCode < 500 {
		level = slog.LevelWarn
	} else if statusCode >= 500 {
		level = slog.LevelError
	}

	fields := NewFields().
		WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, "", "").
		WithHTTPResponse(statusCode, durationMs, statusCode < 400).
		WithClientIP(clientIP)
	sl.defaultComponent(fields, ComponentHTTP)

	sl.emit(ctx, level, "HTTP request completed", fields)
}

// LogExpenseCreated logs successful expense creation
func (sl *StructuredLogger) LogExpenseCreated(ctx context.Context, userID, id string, amount float64, category, date string) {
	fields := NewFields().
		WithUser(userID).
		WithExpense(id, amount, category, date).
		WithOperation(OpCreate)
	sl.defaultComponent(fields, ComponentExpense)

	sl.emit(ctx, slog.LevelInfo, "Expense created successfully", fields)
}

// LogExpenseDeleted logs successful expense removal
func (sl *StructuredLogger) LogExpenseDeleted(ctx context.Context, userID, id string) {
	fields := NewFields().
		WithUser(userID).
		WithOperation(OpDelete)
	sl.defaultComponent(fields, ComponentExpense)
	fields[FieldExpenseID] = id

	sl.emit(ctx, slog.LevelInfo, "Expense deleted", fields)
}

// LogBudgetUpdated logs a budget change
func (sl *StructuredLogger) LogBudgetUpdated(ctx context.Context, userID string, budget float64) {
	fields := NewFields().
		WithUser(userID).
		WithOperation(OpUpdate)
	sl.defaultComponent(fields, ComponentExpense)
	fields[FieldBudget] = budget

	sl.emit(ctx, slog.LevelInfo, "Budget updated", fields)
}

// LogError logs an error with structured context
func (sl *StructuredLogger) LogError(ctx context.Context, msg string, err error, component string, operation string, fields LogFields) {
	if fields == nil {
		fields = NewFields()
	}
	allFields := fields.
		WithError(err).
		WithOperation(operation).
		WithComponent(component)

	sl.emit(ctx, slog.LevelError, msg, allFields)
}

// defaultComponent sets component on fields unless the logger already
// carries one of its own.
func (sl *StructuredLogger) defaultComponent(fields LogFields, component string) {
	if c := sl.logger.Component(); c == "" || c == "unknown" {
		fields.WithComponent(component)
	}
}

// emit writes one line with a single component key. A component in fields
// replaces the logger's.
func (sl *StructuredLogger) emit(ctx context.Context, level slog.Level, msg string, fields LogFields) {
	component := sl.logger.Component()
	if c, ok := fields[FieldComponent].(string); ok {
		component = c
		delete(fields, FieldComponent)
	}
	args := append([]any{FieldComponent, component}, fields.ToSlice()...)
	sl.logger.Logger.Log(ctx, level, msg, args...)
}