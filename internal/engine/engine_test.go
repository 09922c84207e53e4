package engine

import (
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/rob634/rmhtitiler-sub001/internal/config"
	"github.com/rob634/rmhtitiler-sub001/internal/core"
)

func TestEngine_ScopesFor(t *testing.T) {
	eng, err := New([]config.RuleConfig{
		{
			Name: "naip-tiles",
			Match: config.Match{
				PathPrefix: "/tiles/",
				Expr:       `query["collection"] startsWith "naip"`,
			},
			Scopes: []string{core.ScopeStorage, core.ScopeDatabase},
		},
		{
			Name:   "all-tiles",
			Match:  config.Match{PathPrefix: "/tiles/"},
			Scopes: []string{core.ScopeStorage},
		},
		{
			Name:   "search",
			Match:  config.Match{Expr: `method == "POST" && path == "/search"`},
			Scopes: []string{core.ScopeDatabase},
		},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	tests := []struct {
		name   string
		method string
		target string
		want   []string
	}{
		{
			name:   "first match wins",
			method: "GET",
			target: "/tiles/12/654/1583.png?collection=naip2022",
			want:   []string{core.ScopeStorage, core.ScopeDatabase},
		},
		{
			name:   "prefix fallback",
			method: "GET",
			target: "/tiles/12/654/1583.png?collection=landsat",
			want:   []string{core.ScopeStorage},
		},
		{
			name:   "prefix without query",
			method: "GET",
			target: "/tiles/12/654/1583.png",
			want:   []string{core.ScopeStorage},
		},
		{
			name:   "expression on method and path",
			method: "POST",
			target: "/search",
			want:   []string{core.ScopeDatabase},
		},
		{
			name:   "method mismatch",
			method: "GET",
			target: "/search",
			want:   nil,
		},
		{
			name:   "no rule matches",
			method: "GET",
			target: "/healthz",
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(tt.method, tt.target, nil)
			got := eng.ScopesFor(r)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ScopesFor(%s %s) = %v, want %v", tt.method, tt.target, got, tt.want)
			}
		})
	}
}

func TestEngine_RuleOrderIsPreserved(t *testing.T) {
	eng, err := New([]config.RuleConfig{
		{Name: "a", Match: config.Match{PathPrefix: "/x/"}, Scopes: []string{"s1"}},
		{Name: "b", Match: config.Match{PathPrefix: "/x/y/"}, Scopes: []string{"s2"}},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	// Rule "b" is shadowed; configuration order decides, not
	// specificity.
	r := httptest.NewRequest("GET", "/x/y/z", nil)
	if got := eng.ScopesFor(r); len(got) != 1 || got[0] != "s1" {
		t.Errorf("ScopesFor() = %v, want [s1]", got)
	}

	if names := ruleNames(eng); !reflect.DeepEqual(names, []string{"a", "b"}) {
		t.Errorf("Rules() order = %v", names)
	}
}

func TestEngine_CompileErrorsSurfaceAtStartup(t *testing.T) {
	_, err := New([]config.RuleConfig{
		{
			Name:   "broken",
			Match:  config.Match{Expr: `query[`},
			Scopes: []string{core.ScopeStorage},
		},
	})
	if err == nil {
		t.Fatal("New() accepted an uncompilable expression")
	}
}

func TestEngine_NonBooleanExpressionRejected(t *testing.T) {
	_, err := New([]config.RuleConfig{
		{
			Name:   "not-a-predicate",
			Match:  config.Match{Expr: `path`},
			Scopes: []string{core.ScopeStorage},
		},
	})
	if err == nil {
		t.Fatal("New() accepted a non-boolean expression")
	}
}

func ruleNames(e *Engine) []string {
	names := make([]string, 0, len(e.rules))
	for _, rule := range e.rules {
		names = append(names, rule.Name)
	}
	return names
}
