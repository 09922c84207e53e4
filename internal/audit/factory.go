package audit

import (
	"fmt"

	"github.com/rob634/rmhtitiler-sub001/internal/config"
	"github.com/rob634/rmhtitiler-sub001/internal/core"
)

// BuildAuditor constructs the auditor selected by configuration.
func BuildAuditor(cfg config.AuditConfig) (core.Auditor, error) {
	if !cfg.Enabled {
		return NewNoopAuditor(), nil
	}
	switch cfg.Type {
	case "file":
		auditor, err := NewFileAuditor(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("creating file auditor: %w", err)
		}
		return auditor, nil
	case "memory", "":
		return NewInMemoryAuditor(), nil
	default:
		return nil, fmt.Errorf("unknown auditor type %q", cfg.Type)
	}
}
