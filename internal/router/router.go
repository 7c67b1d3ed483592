package router

import (
	"database/sql"
	"net/http"
	"time"

	bksmem "health-data-access/internal/adapters/bookings/memory"
	dirmem "health-data-access/internal/adapters/directory/memory"
	mem "health-data-access/internal/adapters/storage/memory"
	pg "health-data-access/internal/adapters/storage/postgres"
	"health-data-access/internal/domain/accesscontrol"
	"health-data-access/internal/domain/accesstokens"
	"health-data-access/internal/domain/auditlog"
	"health-data-access/internal/domain/emergency"
	"health-data-access/internal/middleware"
	"health-data-access/internal/platform/config"
	"health-data-access/internal/platform/ratelimit"
	"health-data-access/internal/ports/auth"
	"health-data-access/internal/ports/bookings"
	"health-data-access/internal/ports/directory"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	httpSwagger "github.com/swaggo/http-swagger"
)

const (
	defaultRateLimitPerHour = 100
	defaultAuditQueueSize   = 1024
	sweepInterval           = 10 * time.Minute
)

type Options struct {
	Cfg *config.Config
	Log zerolog.Logger

	AuthVerifier auth.AuthVerifier // puede ser nil (modo dev)

	// Opcional: si viene, usa Postgres. Si no, in-memory.
	DB *sql.DB

	// Colaboradores externos; nil => versiones in-memory (dev/tests).
	Directory directory.Directory
	Bookings  bookings.Service
}

// Router es el handler HTTP más el ciclo de vida de los workers
// que arranca (audit logger, sweep del rate limiter).
type Router struct {
	http.Handler

	audit *auditlog.Service
	stop  chan struct{}
}

// Close drena la cola de auditoría y frena el sweeper. Llamar una vez,
// al apagar el server.
func (rt *Router) Close() {
	close(rt.stop)
	rt.audit.Close()
}

func New(opts Options) *Router {
	cfg := opts.Cfg
	if cfg == nil {
		cfg = &config.Config{}
	}

	rateLimit := cfg.RateLimitPerHour
	if rateLimit <= 0 {
		rateLimit = defaultRateLimitPerHour
	}
	queueSize := cfg.AuditQueueSize
	if queueSize <= 0 {
		queueSize = defaultAuditQueueSize
	}

	dir := opts.Directory
	if dir == nil {
		dir = dirmem.NewDirectory()
	}
	bks := opts.Bookings
	if bks == nil {
		bks = bksmem.NewService()
	}

	var (
		tokensRepo accesstokens.Repository
		auditRepo  auditlog.Repository
		emergRepo  emergency.Repository
		summaries  emergency.SummaryStore
	)

	db := opts.DB
	if db == nil && cfg.DBDSN != "" {
		if opened, err := pg.Open(cfg.DBDSN); err == nil {
			db = opened
		} else {
			opts.Log.Error().Err(err).Msg("postgres unavailable, falling back to memory repos")
		}
	}

	if db != nil {
		tokensRepo = pg.NewTokensRepo(db)
		auditRepo = pg.NewAuditLogRepo(db)
		emergRepo = pg.NewEmergencyRepo(db)
		summaries = pg.NewSummaryStore(db)
	} else {
		tokensRepo = mem.NewTokensRepo()
		auditRepo = mem.NewAuditLogRepo()
		emergRepo = mem.NewEmergencyRepo()
		summaries = mem.NewSummaryStore()
	}

	limiter := ratelimit.NewSlidingWindow(rateLimit, time.Hour)

	// Services por módulo
	auditSvc := auditlog.NewService(auditRepo, opts.Log, queueSize)
	tokensSvc := accesstokens.NewService(tokensRepo, dir, bks, opts.Log)
	accessSvc := accesscontrol.NewService(tokensSvc, auditSvc, limiter, opts.Log)
	emergencySvc := emergency.NewService(emergRepo, summaries, opts.Log, cfg.EmergencyTokenTTLHours)

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Use(middleware.AuthContext(opts.AuthVerifier))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/swagger/*", httpSwagger.WrapHandler)

	// Rutas por módulo
	accesstokens.RegisterRoutes(r, tokensSvc)
	accesscontrol.RegisterRoutes(r, accessSvc, dir)
	auditlog.RegisterRoutes(r, auditSvc, dir)
	emergency.RegisterRoutes(r, emergencySvc)

	rt := &Router{
		Handler: r,
		audit:   auditSvc,
		stop:    make(chan struct{}),
	}

	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				limiter.Sweep()
			case <-rt.stop:
				return
			}
		}
	}()

	return rt
}
