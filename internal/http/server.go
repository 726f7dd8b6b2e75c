package http

import (
	"context"
	"errors"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"budgetly/internal/cache"
	"budgetly/internal/charts"
	"budgetly/internal/core"
	"budgetly/internal/log"
	"budgetly/internal/middleware/ratelimit"
	"budgetly/internal/middleware/security"
	"budgetly/internal/middleware/trace"
	"budgetly/internal/session"
	appweb "budgetly/web"
)

const (
	sessionCookie = "budgetly_session"

	chartCacheSize = 256
	chartCacheTTL  = 10 * time.Minute
)

// Options carries everything the server needs besides its address.
type Options struct {
	Sessions *session.Manager
	Logger   *log.Logger
	// Ready reports whether the data backend is reachable. Nil means always.
	Ready func(ctx context.Context) error
	Now   func() time.Time

	CookieSecure       bool
	RateLimitPerMinute int
	// TrustedProxies extend the private ranges whose X-Forwarded-For is used.
	TrustedProxies []string
}

type Server struct {
	http.Server
	templates *template.Template
	sessions  *session.Manager
	charts    *charts.Renderer
	chartLRU  *cache.LRUCache[[]byte]
	caches    *cache.Manager
	ready     func(ctx context.Context) error
	now       func() time.Time
	logger    *log.Logger
	events    *log.StructuredLogger

	cookieSecure bool

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware

	appMetrics appMetrics

	shutdownOnce sync.Once
}

type appMetrics struct {
	expensesCreated atomic.Int64
	expensesDeleted atomic.Int64
	budgetUpdates   atomic.Int64
	uptime          time.Time
}

// NewServer parses the embedded templates, wires the middleware chain and
// registers routes.
func NewServer(addr string, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.FromContext(context.Background())
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	logger := opts.Logger.WithComponent(log.ComponentHTTP)
	chartLRU := cache.NewLRUCache[[]byte](chartCacheSize, chartCacheTTL)
	caches := cache.NewManager()
	caches.Register(chartLRU)
	caches.StartCleanup(chartCacheTTL)

	mux := http.NewServeMux()
	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
		},
		sessions:     opts.Sessions,
		charts:       charts.NewRenderer(chartLRU),
		chartLRU:     chartLRU,
		caches:       caches,
		ready:        opts.Ready,
		now:          opts.Now,
		logger:       logger,
		events:       log.NewStructuredLogger(logger),
		cookieSecure: opts.CookieSecure,
		rateLimiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: opts.RateLimitPerMinute,
		}),
		securityDetector: security.NewDetector(),
	}
	s.appMetrics.uptime = opts.Now()
	for _, cidr := range opts.TrustedProxies {
		if err := s.securityDetector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring trusted proxy", log.FieldError, err)
		}
	}
	s.traceMiddleware = trace.NewMiddleware(logger, s.securityDetector.ExtractClientIP)

	t, err := parseTemplates()
	if err != nil {
		logger.Error("Failed parsing templates", log.FieldError, err,
			log.FieldComponent, log.ComponentTemplate)
	}
	s.templates = t

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		logger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /auth/signin", s.handleSignIn)
	mux.HandleFunc("POST /auth/signout", s.handleSignOut)

	authed := func(h http.HandlerFunc) http.Handler {
		return security.NoStore(s.requireSession(h))
	}
	mux.Handle("GET /dashboard", authed(s.handleDashboard))
	mux.Handle("GET /ui/summary", authed(s.handleSummary))
	mux.Handle("POST /ui/filter", authed(s.handleFilter))
	mux.Handle("POST /budget", authed(s.handleUpdateBudget))
	mux.Handle("POST /expenses", authed(s.handleCreateExpense))
	mux.Handle("DELETE /expenses/{id}", authed(s.handleDeleteExpense))
	mux.Handle("GET /charts/categories.png", authed(s.handleCategoryChart))

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	limit := s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, s.rateLimited,
		http.MethodPost, http.MethodDelete)

	var h http.Handler = mux
	h = log.ComponentMiddleware(log.ComponentHTTP)(h)
	h = limit(h)
	h = headers.Middleware(h)
	h = s.securityDetector.Middleware(opts.Logger, s.securityDetector.ExtractClientIP)(h)
	h = s.traceMiddleware.Middleware(h)
	s.Handler = h

	return s
}

func parseTemplates() (*template.Template, error) {
	return template.New("").Funcs(template.FuncMap{
		"money":     core.FormatMoney,
		"amount":    core.FormatAmount,
		"monthName": core.MonthName,
		"months":    func() []int { return []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11} },
		"negative":  func(v float64) bool { return v < 0 },
	}).ParseFS(appweb.TemplatesFS, "templates/*.html")
}

func (s *Server) rateLimited(w http.ResponseWriter, r *http.Request) {
	s.logger.WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.securityDetector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, "Too many requests. Please try again in a minute.").Write(w)
}

// Shutdown stops accepting requests, then closes every session, which
// releases all gateway subscriptions.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		shutdownErr = s.Server.Shutdown(ctx)
		if errors.Is(shutdownErr, http.ErrServerClosed) {
			shutdownErr = nil
		}
		if s.sessions != nil {
			s.sessions.Stop()
		}
		s.caches.Stop()
		s.rateLimiter.Stop()
		s.logger.Info("HTTP server stopped", log.FieldOperation, log.OpShutdown)
	})
	return shutdownErr
}
