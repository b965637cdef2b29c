package decision

import (
	"fmt"

	"github.com/haasonsaas/taskpilot/pkg/models"
)

// Config controls threshold gating, the enabled action set, and fallback
// behavior.
type Config struct {
	// AutoExecuteThreshold is the confidence at or above which a decision
	// may run without approval. Default: 0.85
	AutoExecuteThreshold float64 `yaml:"auto_execute_threshold"`

	// RequireApprovalThreshold is the confidence below which a decision is
	// rejected outright. Default: 0.5
	RequireApprovalThreshold float64 `yaml:"require_approval_threshold"`

	// MinConfidence marks decisions worth a validation warning. Values below
	// it are flagged, not rejected. Default: 0.3
	MinConfidence float64 `yaml:"min_confidence"`

	// EnabledActions is the caller's allowed action set. Empty means all
	// known kinds.
	EnabledActions []models.ActionKind `yaml:"enabled_actions"`

	// FallbackEnabled turns unusable model responses into deterministic
	// fallback decisions when a context is supplied. Default: true
	FallbackEnabled bool `yaml:"fallback_enabled"`

	// FallbackConfidence is the fixed confidence every fallback decision
	// carries. Default: 0.3
	FallbackConfidence float64 `yaml:"fallback_confidence"`

	// FallbackPipelineID routes fallback decisions to a specific pipeline
	// when it is available. Empty defers to keyword matching.
	FallbackPipelineID string `yaml:"fallback_pipeline_id"`
}

// DefaultConfig returns the standard thresholds: auto-execute at 0.85,
// approval floor at 0.5, fallback confidence 0.3, all action kinds enabled.
func DefaultConfig() Config {
	return Config{
		AutoExecuteThreshold:     0.85,
		RequireApprovalThreshold: 0.5,
		MinConfidence:            0.3,
		EnabledActions:           models.AllActionKinds(),
		FallbackEnabled:          true,
		FallbackConfidence:       0.3,
	}
}

// Validate rejects inconsistent thresholds and unknown enabled kinds.
func (c *Config) Validate() error {
	for name, v := range map[string]float64{
		"auto_execute_threshold":     c.AutoExecuteThreshold,
		"require_approval_threshold": c.RequireApprovalThreshold,
		"min_confidence":             c.MinConfidence,
		"fallback_confidence":        c.FallbackConfidence,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s %v outside [0,1]", name, v)
		}
	}
	if c.RequireApprovalThreshold > c.AutoExecuteThreshold {
		return fmt.Errorf("require_approval_threshold %v exceeds auto_execute_threshold %v",
			c.RequireApprovalThreshold, c.AutoExecuteThreshold)
	}
	for _, kind := range c.EnabledActions {
		if !models.KnownActionKind(kind) {
			return fmt.Errorf("enabled_actions contains unknown kind %q", kind)
		}
	}
	return nil
}
