// Package config loads t24spec's runtime configuration from environment
// variables with development-friendly defaults, the way the teacher's
// core/config package does for its own service configuration.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration for the extraction and
// self-improvement core.
type Config struct {
	// Env is the environment name (development, staging, production).
	Env string

	// WorkerRuntime is the command (name or path) used to invoke the
	// external LLM worker runtime, e.g. WORKER_CMD=t24-worker.
	WorkerRuntime string

	// InstructionRoot is the directory tree of versioned instruction
	// documents the Critic and Proposal Applier operate on.
	InstructionRoot string

	// IterationStoreRoot is the directory tree holding one subdirectory
	// per eval_id, per 4.M.
	IterationStoreRoot string

	// GroundTruthRoot is loaded from GROUND_TRUTH_ROOT (defaulting to the
	// iteration store root). No component reads it: the Iteration Store
	// reads each eval's ground_truth.* file from its own eval directory
	// under IterationStoreRoot.
	GroundTruthRoot string

	// ConcurrencyCap bounds the Parallel Orchestrator's simultaneous
	// worker invocations.
	ConcurrencyCap int

	// ExtractorTimeout bounds the five domain extractors other than
	// zones/windows.
	ExtractorTimeout time.Duration

	// RichExtractorTimeout bounds the zones and windows extractors, which
	// read larger schedule tables.
	RichExtractorTimeout time.Duration

	// CriticTimeout bounds a single Critic proposal round.
	CriticTimeout time.Duration

	// OrientationTimeout bounds each of the two orientation passes.
	OrientationTimeout time.Duration

	Verifier Verifier
	OTel     OTelConfig
}

// Verifier carries the ground-truth comparison tolerances from spec.md §4.I.
type Verifier struct {
	AbsoluteTolerance float64
	PercentTolerance  float64
	AngleTolerance    float64
}

// OTelConfig configures OpenTelemetry export, mirroring the teacher's
// common/otel.Setup input.
type OTelConfig struct {
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	Headers        string
}

// Enabled reports whether an OTLP endpoint is configured.
func (c OTelConfig) Enabled() bool {
	return c.Endpoint != ""
}

// Load loads configuration from environment variables, applying sensible
// defaults for development.
func Load() Config {
	return Config{
		Env:                getEnv("T24SPEC_ENV", "development"),
		WorkerRuntime:      getEnv("WORKER_CMD", "t24-worker"),
		InstructionRoot:    getEnv("INSTRUCTION_ROOT", "instructions"),
		IterationStoreRoot: getEnv("ITERATION_STORE_ROOT", "evals"),
		GroundTruthRoot:    getEnv("GROUND_TRUTH_ROOT", getEnv("ITERATION_STORE_ROOT", "evals")),
		ConcurrencyCap:     getEnvInt("CONCURRENCY_CAP", 3),

		ExtractorTimeout:     getEnvDuration("EXTRACTOR_TIMEOUT", 300*time.Second),
		RichExtractorTimeout: getEnvDuration("RICH_EXTRACTOR_TIMEOUT", 600*time.Second),
		CriticTimeout:        getEnvDuration("CRITIC_TIMEOUT", 300*time.Second),
		OrientationTimeout:   getEnvDuration("ORIENTATION_TIMEOUT", 300*time.Second),

		Verifier: Verifier{
			AbsoluteTolerance: getEnvFloat("VERIFIER_ABSOLUTE_TOLERANCE", 0.01),
			PercentTolerance:  getEnvFloat("VERIFIER_PERCENT_TOLERANCE", 0.005),
			AngleTolerance:    getEnvFloat("VERIFIER_ANGLE_TOLERANCE", 15.0),
		},

		OTel: OTelConfig{
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "t24spec"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:        getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
		},
	}
}

// IsProduction returns true if running in the production environment.
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// IsDevelopment returns true if running in the development environment.
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
