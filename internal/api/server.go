package api

import (
	"context"
	"net/http"

	"github.com/rob634/rmhtitiler-sub001/internal/api/middleware"
	"github.com/rob634/rmhtitiler-sub001/internal/cache"
	"github.com/rob634/rmhtitiler-sub001/internal/engine"
	"github.com/rob634/rmhtitiler-sub001/internal/metrics"
	"github.com/rob634/rmhtitiler-sub001/internal/tasks"
)

// DatabasePinger checks that the database pool can still reach its
// server. nil means no database is configured.
type DatabasePinger interface {
	Ping(ctx context.Context) error
}

// ChainInfo describes the identity chain the process was started with.
type ChainInfo struct {
	Mode    string   `json:"mode"`
	Sources []string `json:"sources"`
}

type Server struct {
	cache       *cache.Cache
	ruleEngine  *engine.Engine
	taskManager *tasks.Manager
	collector   *metrics.Collector
	pinger      DatabasePinger
	chain       ChainInfo
}

func NewServer(
	credentialCache *cache.Cache,
	ruleEngine *engine.Engine,
	taskManager *tasks.Manager,
	collector *metrics.Collector,
	pinger DatabasePinger,
	chain ChainInfo,
) *Server {
	return &Server{
		cache:       credentialCache,
		ruleEngine:  ruleEngine,
		taskManager: taskManager,
		collector:   collector,
		pinger:      pinger,
		chain:       chain,
	}
}

// Routes builds the full handler chain. The tiles handler is mounted
// under TileRoute; every request passes the credential middleware so
// matched scopes are refreshed before their handler runs.
func (s *Server) Routes(tiles http.Handler) http.Handler {
	mux := http.NewServeMux()

	// probe and info routes
	mux.HandleFunc("GET "+HealthCheckRoute, s.handleHealth)
	mux.HandleFunc("GET "+ReadyCheckRoute, s.handleReady)
	mux.HandleFunc("GET "+AboutRoute, s.handleAbout)
	mux.Handle("GET "+MetricsRoute, s.collector.Handler())

	// status routes
	mux.HandleFunc("GET "+CredentialStatusRoute, s.handleCredentialStatus)
	mux.HandleFunc("GET "+ListTasksRoute, s.handleListTasks)
	mux.HandleFunc("POST "+TriggerTaskRoute, s.handleTriggerTask)
	mux.HandleFunc("GET "+LogsForTaskRoute, s.handleTaskLogs)

	// tile routes
	if tiles != nil {
		mux.Handle("GET "+TileRoute, tiles)
	}

	return middleware.RecoverMiddleware(
		middleware.CorrelationIDMiddleware(
			middleware.MetricsMiddleware(s.collector)(
				middleware.LoggingMiddleware(
					middleware.CredentialsMiddleware(s.ruleEngine, s.cache)(
						mux)))))
}
