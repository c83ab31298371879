// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "fmt"

// ValidationLevel controls how the pipeline reacts to PromptValidator
// findings. Per §4.8.
type ValidationLevel string

const (
	ValidationOff     ValidationLevel = "off"
	ValidationWarning ValidationLevel = "warning"
	ValidationError   ValidationLevel = "error"
)

// PipelineConfig holds the extraction configuration exposed to pipeline
// callers. Field names and defaults mirror the §6 option table.
type PipelineConfig struct {
	// MaxCharBuffer is the Chunker's max characters per chunk (default 1000).
	MaxCharBuffer int `json:"max_char_buffer" yaml:"max_char_buffer"`

	// ExtractionPasses is the number of independent passes per chunk (default 1).
	ExtractionPasses int `json:"extraction_passes" yaml:"extraction_passes"`

	// MaxWorkers is the number of concurrent inference tasks (default 10).
	MaxWorkers int `json:"max_workers" yaml:"max_workers"`

	// FuzzyThreshold is the minimum ratio for FUZZY alignment (default 0.75).
	FuzzyThreshold float64 `json:"fuzzy_threshold" yaml:"fuzzy_threshold"`

	// LesserThreshold is the minimum ratio for LESSER alignment (default 0.5).
	LesserThreshold float64 `json:"lesser_threshold" yaml:"lesser_threshold"`

	// AcceptLesser enables the LESSER alignment tier (default true).
	AcceptLesser bool `json:"accept_lesser" yaml:"accept_lesser"`

	// FuzzySlack is the window half-range fraction for FUZZY (default 0.25).
	FuzzySlack float64 `json:"fuzzy_slack" yaml:"fuzzy_slack"`

	// ContextWindowChars is the prior-chunk tail length injected into the
	// next chunk's prompt (default 200; 0 disables it).
	ContextWindowChars int `json:"context_window_chars" yaml:"context_window_chars"`

	// ValidationLevel controls PromptValidator enforcement (default warning).
	ValidationLevel ValidationLevel `json:"validation_level" yaml:"validation_level"`

	// MaxRetries is the per-chunk retry count (default 2).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// RequestTimeoutSeconds is the per-inference timeout in seconds (default 60).
	RequestTimeoutSeconds int `json:"request_timeout" yaml:"request_timeout"`

	// WrapperKey is the configured object key FormatNormalizer looks for
	// when the model wraps its extraction list (default "extractions").
	WrapperKey string `json:"wrapper_key" yaml:"wrapper_key"`

	// AttributeSuffix is the key suffix that marks an attribute-bearing
	// sibling key, e.g. "medication_attributes" for class "medication"
	// (default "_attributes").
	AttributeSuffix string `json:"attribute_suffix" yaml:"attribute_suffix"`
}

// NewDefaultPipelineConfig returns a PipelineConfig with every default from
// the §6 option table applied.
func NewDefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		MaxCharBuffer:         1000,
		ExtractionPasses:      1,
		MaxWorkers:            10,
		FuzzyThreshold:        0.75,
		LesserThreshold:       0.5,
		AcceptLesser:          true,
		FuzzySlack:            0.25,
		ContextWindowChars:    200,
		ValidationLevel:       ValidationWarning,
		MaxRetries:            2,
		RequestTimeoutSeconds: 60,
		WrapperKey:            "extractions",
		AttributeSuffix:       "_attributes",
	}
}

// Validate enforces the config invariants from §4.9: extraction_passes >= 1,
// max_workers >= 1, fuzzy_threshold in (0, 1].
func (cfg PipelineConfig) Validate() error {
	if cfg.ExtractionPasses < 1 {
		return fmt.Errorf("%w: extraction_passes must be >= 1, got %d", ErrInvalidInput, cfg.ExtractionPasses)
	}
	if cfg.MaxWorkers < 1 {
		return fmt.Errorf("%w: max_workers must be >= 1, got %d", ErrInvalidInput, cfg.MaxWorkers)
	}
	if cfg.FuzzyThreshold <= 0 || cfg.FuzzyThreshold > 1 {
		return fmt.Errorf("%w: fuzzy_threshold must be in (0, 1], got %v", ErrInvalidInput, cfg.FuzzyThreshold)
	}
	if cfg.MaxCharBuffer <= 0 {
		return fmt.Errorf("%w: max_char_buffer must be > 0, got %d", ErrInvalidInput, cfg.MaxCharBuffer)
	}
	if cfg.LesserThreshold <= 0 || cfg.LesserThreshold > 1 {
		return fmt.Errorf("%w: lesser_threshold must be in (0, 1], got %v", ErrInvalidInput, cfg.LesserThreshold)
	}
	if cfg.FuzzySlack < 0 {
		return fmt.Errorf("%w: fuzzy_slack must be >= 0, got %v", ErrInvalidInput, cfg.FuzzySlack)
	}
	return nil
}
