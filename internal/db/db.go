package db

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/rob634/rmhtitiler-sub001/internal/config"
	"github.com/rob634/rmhtitiler-sub001/internal/core"
)

// BuildConnString resolves the database credential once and embeds it
// as the password of a pool DSN. The token is consumed here, at
// construction; the pool never calls back for refreshes. Restarting
// the process is the supported way to pick up a new database token.
func BuildConnString(ctx context.Context, getter core.TokenGetter, cfg config.DatabaseConfig) (string, error) {
	token, err := getter.Get(ctx, core.ScopeDatabase)
	if err != nil {
		return "", fmt.Errorf("acquiring database credential: %w", err)
	}

	u := url.URL{
		Scheme: "postgresql",
		User:   url.UserPassword(cfg.User, token.Value),
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:   "/" + cfg.Name,
	}

	q := url.Values{}
	q.Set("sslmode", cfg.SSLMode)
	for key, value := range cfg.Params {
		q.Set(key, value)
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// Connect builds the connection pool and verifies it with a ping, so a
// bad token or unreachable host fails at startup instead of on the
// first query.
func Connect(ctx context.Context, connString string, maxConns int32) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	log.Debug().
		Str("host", poolCfg.ConnConfig.Host).
		Str("database", poolCfg.ConnConfig.Database).
		Msg("database pool established")
	return pool, nil
}
