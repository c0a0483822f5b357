// Package config loads the sweep configuration from a YAML file, a .env file
// and SWEEP_* environment variables, in that order of precedence (last wins).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/ignition-sweep/go-controller/internal/circuit"
	"github.com/danielpatrickdp/ignition-sweep/go-controller/internal/controls"
	"github.com/danielpatrickdp/ignition-sweep/go-controller/internal/decision"
	"github.com/danielpatrickdp/ignition-sweep/go-controller/internal/eval"
	"github.com/danielpatrickdp/ignition-sweep/go-controller/internal/executor"
	"github.com/danielpatrickdp/ignition-sweep/go-controller/internal/logging"
	"github.com/danielpatrickdp/ignition-sweep/go-controller/internal/sweep"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

var validate = validator.New()

// #region types

// Config holds the full sweep configuration.
type Config struct {
	Partition   circuit.Partition `yaml:"partition"`
	Physics     circuit.Constants `yaml:"physics"`
	Thresholds  decision.Config   `yaml:"thresholds"`
	Sweep       sweep.Config      `yaml:"sweep"`
	Controls    ControlsConfig    `yaml:"controls"`
	Attribution eval.EvalConfig   `yaml:"attribution"`
	Backend     BackendConfig     `yaml:"backend"`
	Evidence    EvidenceConfig    `yaml:"evidence"`
	Log         logging.Config    `yaml:"log"`
}

// ControlsConfig seeds the C2 permutation.
type ControlsConfig struct {
	Seed int64 `yaml:"seed"`
}

// BackendConfig selects the execution service and its options.
type BackendConfig struct {
	Address    string                  `yaml:"address" validate:"required_unless=DryRun true"`
	Candidates []string                `yaml:"candidates" validate:"min=1,dive,required"`
	Compile    executor.CompileOptions `yaml:"compile"`
	Execute    executor.ExecuteOptions `yaml:"execute"`
	DryRun     bool                    `yaml:"dry_run"` // synthetic executor, no service
}

// EvidenceConfig locates the artifact directory and the SQLite index.
// An empty IndexPath disables indexing.
type EvidenceConfig struct {
	Dir       string `yaml:"dir" validate:"required"`
	IndexPath string `yaml:"index_path"`
}

// #endregion types

// #region defaults

// Default returns the v2.1 ignition sweep on a 120-qubit register.
func Default() Config {
	return Config{
		Partition:   circuit.Partition{L: 50, R: 50, Anc: 20},
		Physics:     circuit.DefaultConstants(),
		Thresholds:  decision.DefaultConfig(),
		Sweep:       sweep.DefaultConfig(),
		Controls:    ControlsConfig{Seed: controls.DefaultSeed},
		Attribution: eval.DefaultEvalConfig(),
		Backend: BackendConfig{
			Address:    "localhost:50051",
			Candidates: []string{"ibm_fez", "ibm_torino", "ibm_brisbane"},
			Compile:    executor.DefaultCompileOptions(),
			Execute:    executor.DefaultExecuteOptions(),
		},
		Evidence: EvidenceConfig{
			Dir:       "~/.osiris/evidence/quantum",
			IndexPath: "~/.osiris/evidence/quantum/index.db",
		},
		Log: logging.DefaultConfig(),
	}
}

// #endregion defaults

// #region load

// Load reads path (optional) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	cfg.Evidence.Dir = expandHome(cfg.Evidence.Dir)
	cfg.Evidence.IndexPath = expandHome(cfg.Evidence.IndexPath)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks struct tags and the cross-field rules tags cannot express.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := c.Partition.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := c.Sweep.Grid.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Backend.Address = getEnv("SWEEP_ADDRESS", cfg.Backend.Address)
	if v := os.Getenv("SWEEP_BACKENDS"); v != "" {
		cfg.Backend.Candidates = splitList(v)
	}
	cfg.Backend.DryRun = getEnvAsBool("SWEEP_DRY_RUN", cfg.Backend.DryRun)

	cfg.Sweep.Shots = getEnvAsInt("SWEEP_SHOTS", cfg.Sweep.Shots)
	cfg.Sweep.ControlShots = getEnvAsInt("SWEEP_CONTROL_SHOTS", cfg.Sweep.ControlShots)
	cfg.Sweep.Workers = getEnvAsInt("SWEEP_WORKERS", cfg.Sweep.Workers)

	cfg.Thresholds.PhiThreshold = getEnvAsFloat("SWEEP_PHI_THRESHOLD", cfg.Thresholds.PhiThreshold)
	cfg.Thresholds.GammaCritical = getEnvAsFloat("SWEEP_GAMMA_CRITICAL", cfg.Thresholds.GammaCritical)

	cfg.Evidence.Dir = getEnv("SWEEP_EVIDENCE_DIR", cfg.Evidence.Dir)
	cfg.Evidence.IndexPath = getEnv("SWEEP_INDEX_PATH", cfg.Evidence.IndexPath)
	cfg.Log.Level = getEnv("SWEEP_LOG_LEVEL", cfg.Log.Level)
}

// #endregion load

// #region helpers
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

// #endregion helpers
