package validation

import (
	"fmt"

	"github.com/rob634/rmhtitiler-sub001/internal/config"
)

// ValidateRules cross-checks the routing rules against the registered
// scopes. Field-level checks happen during config loading; this catches
// the wiring mistakes a single rule cannot see: duplicate names and
// references to scopes that were never registered.
func ValidateRules(rules []config.RuleConfig, knownScopes map[string]struct{}) error {
	seenNames := make(map[string]struct{})

	for i, rule := range rules {
		if rule.Name == "" {
			return fmt.Errorf("rule #%d missing name", i)
		}
		if _, exists := seenNames[rule.Name]; exists {
			return fmt.Errorf("rule name '%s' is not unique", rule.Name)
		}
		seenNames[rule.Name] = struct{}{}

		for _, scope := range rule.Scopes {
			if _, known := knownScopes[scope]; !known {
				return fmt.Errorf("rule '%s' references unknown scope '%s'", rule.Name, scope)
			}
		}
	}

	return nil
}
