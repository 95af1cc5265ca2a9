// Command modeld runs the Model Service: it preloads the face detector,
// landmark regressor and descriptor encoder once, then answers vision
// RPCs from one or more Verifier processes over a Unix domain socket
// (spec §4.1).
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MiFaceDEV/facecore/internal/config"
	"github.com/MiFaceDEV/facecore/internal/ipc"
	"github.com/MiFaceDEV/facecore/internal/logging"
	"github.com/MiFaceDEV/facecore/internal/modelsvc"
	"github.com/MiFaceDEV/facecore/internal/pidfile"
	"github.com/MiFaceDEV/facecore/pkg/vision"
)

var version = "0.1.0"

func main() {
	configPath := flag.String("config", "", "Path to TOML configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	metricsAddr := flag.String("metrics-addr", "127.0.0.1:9412", "Address to serve Prometheus metrics on (requires debug.end_report)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "modeld - face recognition model service\n\n")
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Printf("modeld version %s\n", version)
		os.Exit(0)
	}

	log := logging.New("modeld", logging.ParseLevel(*logLevel))

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("loading configuration")
	}

	pf, err := pidfile.Acquire(cfg.Core.PIDPath)
	if err != nil {
		log.WithError(err).Fatal("acquiring pid file")
	}
	defer pf.Release()

	loadStart := time.Now()
	visionCfg := vision.DefaultConfig(cfg.Core.ModelsDir)
	if cfg.Core.UseCNN {
		visionCfg.Variant = vision.DetectorCNN
	}
	if cfg.Security.AdvancedLiveness {
		visionCfg.LandmarkPoints = 68
	} else {
		visionCfg.LandmarkPoints = 5
	}

	models, err := vision.Load(visionCfg)
	if err != nil {
		log.WithError(err).Fatal("loading vision models")
	}
	log.WithField("elapsed", time.Since(loadStart)).Info("models loaded")

	svc := modelsvc.New(models, cfg.Core.EnrollmentDir, log)
	if err := svc.Start(loadStart); err != nil {
		log.WithError(err).Fatal("starting model service")
	}
	defer svc.Close()

	srv, err := ipc.Listen(cfg.Core.SocketPath, svc.Handle, log)
	if err != nil {
		log.WithError(err).Fatal("listening on socket")
	}

	if cfg.Debug.EndReport {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(svc.Registry(), promhttp.HandlerOpts{}))
		metricsSrv := &http.Server{Addr: *metricsAddr, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.WithError(err).Warn("metrics server stopped")
			}
		}()
		defer metricsSrv.Close()
		log.WithField("addr", *metricsAddr).Info("metrics endpoint enabled")
	}

	go func() {
		if err := srv.Serve(); err != nil {
			log.WithError(err).Error("serve loop exited")
		}
	}()
	log.WithField("socket", cfg.Core.SocketPath).Info("model service ready")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.WithField("signal", sig).Info("shutting down")

	if err := srv.Close(); err != nil {
		log.WithError(err).Warn("closing socket")
	}
}
