package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"", slog.LevelInfo, false},
		{"INFO", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v, err %v", tt.in, got, err, tt.want, tt.wantErr)
		}
	}
}

func TestLoggerAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewText(&buf, slog.LevelInfo, ComponentGateway)
	logger.Info("hello", FieldUserID, "u1")
	logger.Debug("hidden")

	out := buf.String()
	if !strings.Contains(out, "component=gateway") || !strings.Contains(out, "user_id=u1") {
		t.Fatalf("missing fields in %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line written at info level")
	}
}

func TestComponentMiddleware(t *testing.T) {
	var buf bytes.Buffer
	base := NewText(&buf, slog.LevelInfo, ComponentApp).With(FieldRequestID, "req-1")

	h := ComponentMiddleware(ComponentHTTP)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		FromContext(r.Context()).InfoContext(r.Context(), "inside")
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), LoggerContextKey, base))
	h.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	if !strings.Contains(out, "request_id=req-1") || !strings.Contains(out, "component=http") {
		t.Fatalf("component or request id missing from %q", out)
	}
	if strings.Count(out, "component=") != 1 {
		t.Fatalf("component logged more than once: %q", out)
	}
}

func TestFromContextFallsBack(t *testing.T) {
	if l := FromContext(context.Background()); l == nil || l.Component() != "unknown" {
		t.Fatalf("expected fallback logger, got %+v", l)
	}
}

func TestStructuredLoggerExpenseFields(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(NewText(&buf, slog.LevelInfo, ComponentExpense))
	sl.LogExpenseCreated(context.Background(), "u1", "e1", 12.5, "Food", "2024-05-01")

	out := buf.String()
	for _, want := range []string{"user_id=u1", "expense_id=e1", "amount=12.5", "category=Food", "operation=create"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in %q", want, out)
		}
	}
}

func TestStructuredLoggerComponentOnce(t *testing.T) {
	tests := []struct {
		name      string
		component string
		log       func(sl *StructuredLogger)
		want      string
	}{
		{
			name:      "logger component kept",
			component: ComponentGateway,
			log: func(sl *StructuredLogger) {
				sl.LogExpenseCreated(context.Background(), "u1", "e1", 1, "Food", "2024-05-01")
			},
			want: "component=gateway",
		},
		{
			name:      "fallback component",
			component: "unknown",
			log: func(sl *StructuredLogger) {
				sl.LogBudgetUpdated(context.Background(), "u1", 10)
			},
			want: "component=expense",
		},
		{
			name:      "explicit error component",
			component: ComponentHTTP,
			log: func(sl *StructuredLogger) {
				sl.LogError(context.Background(), "render failed", errors.New("boom"), ComponentCharts, OpRender, nil)
			},
			want: "component=charts",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := &Logger{
				Logger:    slog.New(slog.NewTextHandler(&buf, nil)),
				component: tt.component,
			}
			tt.log(NewStructuredLogger(logger))

			out := buf.String()
			if !strings.Contains(out, tt.want) {
				t.Errorf("want %q in %q", tt.want, out)
			}
			if n := strings.Count(out, "component="); n != 1 {
				t.Errorf("component logged %d times: %q", n, out)
			}
		})
	}
}

func TestLogErrorAcceptsNilFields(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(NewText(&buf, slog.LevelInfo, ComponentCharts))
	sl.LogError(context.Background(), "render failed", errors.New("boom"), ComponentCharts, OpRender, nil)

	out := buf.String()
	if !strings.Contains(out, "error=boom") || !strings.Contains(out, "operation=render") {
		t.Fatalf("missing fields in %q", out)
	}
}
