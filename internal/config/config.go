// Package config holds the export core's runtime configuration: binary
// paths, per-mode timeouts, and session/performance tuning. Shaped after
// the teacher's data/plugins/ffmpeg_transcoder config package (flat struct
// of sub-structs, DefaultConfig + Validate).
package config

import (
	"fmt"
	"os"
	"os/exec"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level export-core configuration.
type Config struct {
	FFmpeg      FFmpegConfig      `yaml:"ffmpeg"`
	Timeouts    TimeoutConfig     `yaml:"timeouts"`
	Session     SessionConfig     `yaml:"session"`
	Performance PerformanceConfig `yaml:"performance"`
}

// FFmpegConfig locates the external binaries.
type FFmpegConfig struct {
	BinaryPath  string `yaml:"binary_path"`
	ProbePath   string `yaml:"probe_path"`
}

// TimeoutConfig is the per-mode wall-clock ceiling from spec §5. Zero means
// no ceiling (Mode D's default).
type TimeoutConfig struct {
	ModeA time.Duration `yaml:"mode_a"`
	ModeB time.Duration `yaml:"mode_b"`
	ModeC time.Duration `yaml:"mode_c"`
	ModeD time.Duration `yaml:"mode_d"`

	// GracefulStop bounds how long a cancelled child gets between SIGTERM
	// and SIGKILL (spec §4.9: "waits up to 5s, then SIGKILL").
	GracefulStop time.Duration `yaml:"graceful_stop"`
}

// SessionConfig controls session directory layout and retention.
type SessionConfig struct {
	Root         string        `yaml:"root"` // parent of qcut-export/<session id>; defaults to os.TempDir()
	KeepOnError  bool          `yaml:"keep_on_error"`
	StaleMaxAge  time.Duration `yaml:"stale_max_age"`
}

// PerformanceConfig bounds optional concurrency.
type PerformanceConfig struct {
	// MaxNormalizeWorkers bounds Mode B's concurrent clip-normalization
	// pool (spec §5: "bounded by CPU count"). 0 means "use detected CPU
	// count".
	MaxNormalizeWorkers int `yaml:"max_normalize_workers"`
}

// DefaultConfig returns the export core's out-of-the-box configuration,
// honoring FFMPEG_PATH/FFPROBE_PATH/TMPDIR overrides (spec §6).
func DefaultConfig() *Config {
	return &Config{
		FFmpeg: FFmpegConfig{
			BinaryPath: detectBinary("FFMPEG_PATH", "ffmpeg"),
			ProbePath:  detectBinary("FFPROBE_PATH", "ffprobe"),
		},
		Timeouts: TimeoutConfig{
			ModeA:        60 * time.Second,
			ModeB:        300 * time.Second,
			ModeC:        300 * time.Second,
			ModeD:        0,
			GracefulStop: 5 * time.Second,
		},
		Session: SessionConfig{
			Root:        os.TempDir(),
			KeepOnError: false,
			StaleMaxAge: 24 * time.Hour,
		},
		Performance: PerformanceConfig{
			MaxNormalizeWorkers: 0,
		},
	}
}

// detectBinary mirrors the teacher's detectFFmpegPath(): env override first,
// then PATH lookup, falling back to the bare name so exec.LookPath errors
// surface naturally at spawn time instead of here.
func detectBinary(envVar, name string) string {
	if custom := os.Getenv(envVar); custom != "" {
		return custom
	}
	if path, err := exec.LookPath(name); err == nil {
		return path
	}
	return name
}

// Load reads a YAML config file and overlays it onto DefaultConfig.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.FFmpeg.BinaryPath == "" {
		return fmt.Errorf("ffmpeg binary path is empty")
	}
	if c.FFmpeg.ProbePath == "" {
		return fmt.Errorf("ffprobe binary path is empty")
	}
	if c.Timeouts.GracefulStop <= 0 {
		return fmt.Errorf("graceful_stop must be positive")
	}
	if c.Session.Root == "" {
		return fmt.Errorf("session root is empty")
	}
	if c.Performance.MaxNormalizeWorkers < 0 {
		return fmt.Errorf("max_normalize_workers must be >= 0")
	}
	return nil
}
