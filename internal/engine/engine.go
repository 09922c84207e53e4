package engine

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/rs/zerolog/log"

	"github.com/rob634/rmhtitiler-sub001/internal/config"
)

// RouteRule is one compiled routing rule: which requests it matches and
// which credential scopes those requests need.
type RouteRule struct {
	Name       string
	PathPrefix string
	Scopes     []string

	exprSource string
	program    *vm.Program
}

// Engine resolves incoming requests to the credential scopes they need.
// Rules are evaluated in configuration order; the first match wins.
type Engine struct {
	rules []RouteRule
}

// New compiles the configured rules. Expression errors surface here,
// at startup, not per request.
func New(rules []config.RuleConfig) (*Engine, error) {
	compiled := make([]RouteRule, 0, len(rules))
	for _, rc := range rules {
		rule := RouteRule{
			Name:       rc.Name,
			PathPrefix: rc.Match.PathPrefix,
			Scopes:     rc.Scopes,
		}
		if rc.Match.Expr != "" {
			program, err := expr.Compile(rc.Match.Expr, expr.Env(emptyEnv()), expr.AsBool())
			if err != nil {
				return nil, fmt.Errorf("compiling expression for rule %q: %w", rc.Name, err)
			}
			rule.exprSource = rc.Match.Expr
			rule.program = program
		}
		compiled = append(compiled, rule)
	}
	return &Engine{rules: compiled}, nil
}

// Rules returns the compiled rule set in evaluation order.
func (e *Engine) Rules() []RouteRule {
	return e.rules
}

// ScopesFor returns the scopes the first matching rule demands, or nil
// when no rule matches the request.
func (e *Engine) ScopesFor(r *http.Request) []string {
	for _, rule := range e.rules {
		if rule.matches(r) {
			return rule.Scopes
		}
	}
	return nil
}

func (rule *RouteRule) matches(r *http.Request) bool {
	if rule.PathPrefix != "" && !strings.HasPrefix(r.URL.Path, rule.PathPrefix) {
		return false
	}
	if rule.program != nil {
		out, err := expr.Run(rule.program, envFor(r))
		if err != nil {
			log.Warn().Err(err).Msgf("error evaluating expression for rule '%s'", rule.Name)
			return false
		}
		matched, isBool := out.(bool)
		if !isBool || !matched {
			return false
		}
	}
	return true
}

func envFor(r *http.Request) map[string]any {
	query := make(map[string]string)
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			query[key] = values[0]
		}
	}
	return map[string]any{
		"method": r.Method,
		"path":   r.URL.Path,
		"query":  query,
	}
}

func emptyEnv() map[string]any {
	return map[string]any{
		"method": "",
		"path":   "",
		"query":  map[string]string{},
	}
}
