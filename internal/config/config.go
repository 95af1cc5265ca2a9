// Package config provides TOML configuration loading for the face
// authentication core.
//
// The configuration file supports the following structure:
//
//	[core]
//	use_cnn = false
//	socket_path = "/run/facecore/model.sock"
//	pid_path = "/run/facecore/modeld.pid"
//	enrollment_dir = "/var/lib/facecore/enrollments"
//	models_dir = "/usr/share/facecore/models"
//
//	[video]
//	timeout = 4.0
//	dark_threshold = 0.6
//	certainty = 0.35
//	max_height = 480
//	enable_quality_filtering = true
//	enable_adaptive_processing = true
//
//	[security]
//	liveness_check = true
//	advanced_liveness = true
//	active_challenge = true
//	frequency_analysis = true
//	temporal_analysis = true
//	security_level = "medium"
//	challenge_timeout = 3.0
//	moire_threshold = 0.15
//	min_consistency_frames = 5
//
//	[snapshots]
//	save_failed = false
//	save_successful = false
//
//	[debug]
//	end_report = false
//
// Example usage:
//
//	cfg, err := config.Load("config.toml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Socket path: %s\n", cfg.Core.SocketPath)
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config represents the complete configuration for the face authentication
// core. It is produced by an external loader (this package) and consumed
// read-only by the Model Service and the Verifier.
type Config struct {
	Core      CoreConfig      `toml:"core"`
	Video     VideoConfig     `toml:"video"`
	Security  SecurityConfig  `toml:"security"`
	Snapshots SnapshotsConfig `toml:"snapshots"`
	Debug     DebugConfig     `toml:"debug"`
}

// CoreConfig holds Model Service and detector selection settings.
type CoreConfig struct {
	// UseCNN selects the higher-recall convolutional detector over the
	// fast sliding-window (Haar cascade) one (default: false).
	UseCNN bool `toml:"use_cnn"`
	// SocketPath is the well-known Unix domain socket path the Model
	// Service listens on.
	SocketPath string `toml:"socket_path"`
	// PIDPath is the well-known PID file path for the Model Service.
	PIDPath string `toml:"pid_path"`
	// EnrollmentDir holds one file per enrolled username.
	EnrollmentDir string `toml:"enrollment_dir"`
	// ModelsDir holds the detector/landmarker/descriptor model files.
	ModelsDir string `toml:"models_dir"`
	// CameraDeviceID is the camera device index opened by the Verifier.
	CameraDeviceID int `toml:"camera_device_id"`
	// JournalPath is the Security Journal append-only log file.
	JournalPath string `toml:"journal_path"`
}

// VideoConfig holds camera/pipeline settings.
type VideoConfig struct {
	// Timeout is the wall-clock deadline in seconds for one attempt,
	// excluding camera open (default: 4.0).
	Timeout float64 `toml:"timeout"`
	// DarkThreshold is the dark-histogram-bin ratio above which a frame
	// counts as "too dark" (default: 0.6).
	DarkThreshold float64 `toml:"dark_threshold"`
	// Certainty is the certainty_threshold for descriptor distance
	// (default: 0.35). Named directly; no /10 scaling (spec §9).
	Certainty float64 `toml:"certainty"`
	// MaxHeight is the resize ceiling in pixels (default: 480).
	MaxHeight int `toml:"max_height"`
	// EnableQualityFiltering toggles the Quality Gate (default: true).
	EnableQualityFiltering bool `toml:"enable_quality_filtering"`
	// EnableAdaptiveProcessing toggles adaptive skip/resize control
	// (default: true).
	EnableAdaptiveProcessing bool `toml:"enable_adaptive_processing"`
}

// SecurityConfig holds liveness and lockout settings.
type SecurityConfig struct {
	LivenessCheck        bool    `toml:"liveness_check"`
	AdvancedLiveness     bool    `toml:"advanced_liveness"`
	ActiveChallenge      bool    `toml:"active_challenge"`
	FrequencyAnalysis    bool    `toml:"frequency_analysis"`
	TemporalAnalysis     bool    `toml:"temporal_analysis"`
	SecurityLevel        string  `toml:"security_level"` // "medium" or "high"
	ChallengeTimeout     float64 `toml:"challenge_timeout"`
	MoireThreshold       float64 `toml:"moire_threshold"`
	MinConsistencyFrames int     `toml:"min_consistency_frames"`
}

// SnapshotsConfig controls optional snapshot writing (external collaborator;
// the core only decides whether to ask for one).
type SnapshotsConfig struct {
	SaveFailed     bool `toml:"save_failed"`
	SaveSuccessful bool `toml:"save_successful"`
}

// DebugConfig holds debug/reporting toggles.
type DebugConfig struct {
	EndReport bool `toml:"end_report"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Core: CoreConfig{
			UseCNN:         false,
			SocketPath:     "/run/facecore/model.sock",
			PIDPath:        "/run/facecore/modeld.pid",
			EnrollmentDir:  "/var/lib/facecore/enrollments",
			ModelsDir:      "/usr/share/facecore/models",
			CameraDeviceID: 0,
			JournalPath:    "/var/log/facecore/journal.log",
		},
		Video: VideoConfig{
			Timeout:                  4.0,
			DarkThreshold:            0.6,
			Certainty:                0.35,
			MaxHeight:                480,
			EnableQualityFiltering:   true,
			EnableAdaptiveProcessing: true,
		},
		Security: SecurityConfig{
			LivenessCheck:        true,
			AdvancedLiveness:     true,
			ActiveChallenge:      true,
			FrequencyAnalysis:    true,
			TemporalAnalysis:     true,
			SecurityLevel:        "medium",
			ChallengeTimeout:     3.0,
			MoireThreshold:       0.15,
			MinConsistencyFrames: 5,
		},
		Snapshots: SnapshotsConfig{
			SaveFailed:     false,
			SaveSuccessful: false,
		},
		Debug: DebugConfig{
			EndReport: false,
		},
	}
}

// Load reads and parses a TOML configuration file.
// If the file does not exist, it returns the default configuration.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Core.SocketPath == "" {
		return fmt.Errorf("core.socket_path must not be empty")
	}
	if c.Core.EnrollmentDir == "" {
		return fmt.Errorf("core.enrollment_dir must not be empty")
	}
	if c.Video.Timeout <= 0 {
		return fmt.Errorf("video.timeout must be positive, got %f", c.Video.Timeout)
	}
	if c.Video.DarkThreshold < 0 || c.Video.DarkThreshold > 1 {
		return fmt.Errorf("video.dark_threshold must be between 0 and 1, got %f", c.Video.DarkThreshold)
	}
	if c.Video.Certainty <= 0 {
		return fmt.Errorf("video.certainty must be positive, got %f", c.Video.Certainty)
	}
	if c.Video.MaxHeight <= 0 {
		return fmt.Errorf("video.max_height must be positive, got %d", c.Video.MaxHeight)
	}
	switch c.Security.SecurityLevel {
	case "medium", "high":
	default:
		return fmt.Errorf("security.security_level must be \"medium\" or \"high\", got %q", c.Security.SecurityLevel)
	}
	if c.Security.ChallengeTimeout <= 0 {
		return fmt.Errorf("security.challenge_timeout must be positive, got %f", c.Security.ChallengeTimeout)
	}
	if c.Security.MoireThreshold < 0 || c.Security.MoireThreshold > 1 {
		return fmt.Errorf("security.moire_threshold must be between 0 and 1, got %f", c.Security.MoireThreshold)
	}
	if c.Security.MinConsistencyFrames <= 0 {
		return fmt.Errorf("security.min_consistency_frames must be positive, got %d", c.Security.MinConsistencyFrames)
	}
	return nil
}

// RequiredChallenges returns how many distinct active challenges the
// configured security level requires to complete.
func (c *Config) RequiredChallenges() int {
	if c.Security.SecurityLevel == "high" {
		return 2
	}
	return 1
}
