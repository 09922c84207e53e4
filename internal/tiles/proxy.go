package tiles

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/rs/zerolog/log"

	"github.com/rob634/rmhtitiler-sub001/internal/api/presenter"
)

// NewProxyHandler forwards tile requests to an external renderer. The
// renderer process reads the published environment variables itself, so
// the proxy adds nothing credential-related to the request.
func NewProxyHandler(upstream string) (http.Handler, error) {
	target, err := url.Parse(upstream)
	if err != nil {
		return nil, fmt.Errorf("parsing upstream URL %q: %w", upstream, err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("upstream URL %q needs a scheme and host", upstream)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)

	director := proxy.Director
	proxy.Director = func(req *http.Request) {
		director(req)
		req.Host = target.Host
	}
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Ctx(r.Context()).Error().
			Err(err).
			Str("upstream", target.Host).
			Msg("tile proxy failed")
		presenter.Error(w, r, "tile renderer unreachable", http.StatusBadGateway)
	}

	return proxy, nil
}
