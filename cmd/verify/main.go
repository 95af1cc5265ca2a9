// Command verify is the Verifier CLI invoked once per authentication
// attempt, typically by a PAM module or login manager (spec §4.6). It
// exits with a typed status code (spec §6) rather than printing
// human-facing output; the K=V status stream described in spec §6 is
// written to stdout for an optional UI process to read.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/MiFaceDEV/facecore/internal/config"
	"github.com/MiFaceDEV/facecore/internal/ipc"
	"github.com/MiFaceDEV/facecore/internal/journal"
	"github.com/MiFaceDEV/facecore/internal/logging"
	"github.com/MiFaceDEV/facecore/pkg/faceauth"
)

var version = "0.1.0"

func main() {
	configPath := flag.String("config", "", "Path to TOML configuration file")
	username := flag.String("user", "", "Username to authenticate (required)")
	showVersion := flag.Bool("version", false, "Show version information")
	logLevel := flag.String("log-level", "warn", "Log level (debug, info, warn, error)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "verify - face authentication for one user\n\n")
		fmt.Fprintf(os.Stderr, "Usage: %s -user <name> [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Printf("verify version %s\n", version)
		os.Exit(0)
	}

	log := logging.New("verify", logging.ParseLevel(*logLevel))

	if *username == "" {
		log.Error("missing required -user flag")
		os.Exit(faceauth.OutcomeInvalidInvocation.ExitCode())
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Error("loading configuration")
		os.Exit(faceauth.OutcomeInvalidInvocation.ExitCode())
	}

	j, err := journal.Open(cfg.Core.JournalPath)
	if err != nil {
		log.WithError(err).Error("opening security journal")
		os.Exit(faceauth.OutcomeServiceUnavailable.ExitCode())
	}
	defer j.Close()

	client := faceauth.NewModelClient(ipc.NewClient(cfg.Core.SocketPath))
	camera := faceauth.NewOpenCVCamera()
	ui := faceauth.NewUIChannel(os.Stdout)

	vcfg := verifierConfigFromFile(cfg)
	v := faceauth.NewVerifier(vcfg, client, j, camera, ui, nil, log)

	outcome := v.Run(*username)
	log.WithField("outcome", outcome.String()).Info("attempt finished")
	os.Exit(outcome.ExitCode())
}

// verifierConfigFromFile maps the on-disk configuration keys (spec §6)
// onto the Verifier's runtime config.
func verifierConfigFromFile(cfg *config.Config) faceauth.VerifierConfig {
	level := faceauth.SecurityMedium
	if cfg.Security.SecurityLevel == "high" {
		level = faceauth.SecurityHigh
	}
	return faceauth.VerifierConfig{
		UseCNN:                   cfg.Core.UseCNN,
		CameraDeviceID:           cfg.Core.CameraDeviceID,
		Timeout:                  time.Duration(cfg.Video.Timeout * float64(time.Second)),
		DarkThreshold:            cfg.Video.DarkThreshold,
		CertaintyThreshold:       cfg.Video.Certainty,
		MaxHeight:                cfg.Video.MaxHeight,
		EnableQualityFiltering:   cfg.Video.EnableQualityFiltering,
		EnableAdaptiveProcessing: cfg.Video.EnableAdaptiveProcessing,
		LivenessCheck:            cfg.Security.LivenessCheck,
		AdvancedLiveness:         cfg.Security.AdvancedLiveness,
		ActiveChallenge:          cfg.Security.ActiveChallenge,
		FrequencyAnalysis:        cfg.Security.FrequencyAnalysis,
		TemporalAnalysis:         cfg.Security.TemporalAnalysis,
		SecurityLevel:            level,
		ChallengeTimeout:         time.Duration(cfg.Security.ChallengeTimeout * float64(time.Second)),
		MoireThreshold:           cfg.Security.MoireThreshold,
		MinConsistencyFrames:     cfg.Security.MinConsistencyFrames,
		SaveFailedSnapshot:       cfg.Snapshots.SaveFailed,
		SaveSuccessfulSnapshot:   cfg.Snapshots.SaveSuccessful,
		EndReport:                cfg.Debug.EndReport,
		Workers:                  3,
	}
}
