package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	plasticdetector "github.com/menta2k/plastic-detector"
	"github.com/menta2k/plastic-detector/internal/config"
	"github.com/menta2k/plastic-detector/internal/logging"
	"github.com/menta2k/plastic-detector/internal/utils"
	"github.com/menta2k/plastic-detector/pkg/annotate"
	"github.com/menta2k/plastic-detector/pkg/app"
	"github.com/menta2k/plastic-detector/pkg/capture"
	"github.com/menta2k/plastic-detector/pkg/capture/webcam"
	"github.com/menta2k/plastic-detector/pkg/client"
	"github.com/menta2k/plastic-detector/pkg/detection"
	"github.com/menta2k/plastic-detector/pkg/inference"
	"github.com/menta2k/plastic-detector/pkg/llamacpp"
	"github.com/menta2k/plastic-detector/pkg/ollama"
	"github.com/menta2k/plastic-detector/pkg/web"
)

func main() {
	var configPath, backend, url, model, camera, in, outDir, addr, logLevel string
	var device int
	var oneshot, crop bool

	flag.StringVar(&configPath, "config", "", "YAML config file (default "+config.GetConfigPath()+" when present)")
	flag.StringVar(&backend, "backend", "", "detection backend: http|ollama|llamacpp")
	flag.StringVar(&url, "url", "", "backend URL")
	flag.StringVar(&model, "model", "", "vision model name (ollama, llamacpp)")
	flag.StringVar(&camera, "camera", "", "camera source: webcam|file")
	flag.IntVar(&device, "device", 0, "webcam device index")
	flag.StringVar(&in, "in", "", "image file or directory for the file camera, or the image to analyze with -oneshot")
	flag.BoolVar(&oneshot, "oneshot", false, "analyze -in once, write the annotated result and exit")
	flag.BoolVar(&crop, "crop", true, "crop to the center region before upload (-oneshot)")
	flag.StringVar(&outDir, "out", "", "output directory for results")
	flag.StringVar(&addr, "addr", "", "web server listen address")
	flag.StringVar(&logLevel, "log-level", "", "log level: debug|info|warn|error")
	flag.Parse()

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// Flags override the file only when given
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "backend":
			cfg.Backend.Kind = backend
		case "url":
			cfg.Backend.URL = url
		case "model":
			cfg.Backend.Model = model
		case "camera":
			cfg.Camera.Source = camera
		case "device":
			cfg.Camera.Device = device
		case "in":
			cfg.Camera.Path = in
		case "out":
			cfg.Output.Dir = outDir
			cfg.Output.SaveResults = true
		case "addr":
			cfg.Server.Addr = addr
		case "log-level":
			cfg.Log.Level = logLevel
		}
	})
	if in != "" && camera == "" {
		cfg.Camera.Source = config.SourceFile
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	detector, err := newDetector(cfg, log)
	if err != nil {
		log.Fatalf("Failed to create %s backend: %v", cfg.Backend.Kind, err)
	}

	scanner, err := plasticdetector.New(detector,
		plasticdetector.WithCropPercentage(float64(cfg.Processing.CropPercentage)),
		plasticdetector.WithQuality(cfg.Processing.JPEGQuality),
		plasticdetector.WithLogger(log),
	)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if oneshot {
		if in == "" {
			log.Fatalf("usage: %s -oneshot -in image.jpg [-crop=false] [-out dir]", filepath.Base(os.Args[0]))
		}
		if err := runOneShot(ctx, scanner, in, crop, cfg.Output.Dir, log); err != nil {
			log.Fatal(err)
		}
		return
	}

	if err := serve(ctx, cfg, detector, scanner, log); err != nil {
		log.Fatal(err)
	}
}

// loadConfig reads the given file, or the default path when it exists
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		if !utils.FileExists(config.GetConfigPath()) {
			return config.Default(), nil
		}
		path = config.GetConfigPath()
	}
	return config.LoadFromFile(path)
}

func newDetector(cfg *config.Config, log *logrus.Logger) (client.Detector, error) {
	entry := log.WithField("component", "backend")

	switch cfg.Backend.Kind {
	case config.BackendOllama:
		c, err := ollama.NewClient(cfg.Backend.URL, cfg.Backend.Model, entry)
		if err != nil {
			return nil, err
		}
		return detection.NewDetector(c, entry), nil
	case config.BackendLlamaCPP:
		return detection.NewDetector(llamacpp.NewClient(cfg.Backend.URL, cfg.Backend.Model, entry), entry), nil
	case config.BackendHTTP:
		return inference.NewClient(cfg.Backend.URL,
			inference.WithTimeout(cfg.Backend.Timeout),
			inference.WithLogger(entry),
		), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend.Kind)
	}
}

func newDevice(cfg *config.Config) capture.Device {
	if cfg.Camera.Source == config.SourceFile {
		return capture.NewFileDevice(cfg.Camera.Path)
	}
	return webcam.New(cfg.Camera.Device)
}

func runOneShot(ctx context.Context, scanner *plasticdetector.Scanner, path string, crop bool, outDir string, log *logrus.Logger) error {
	scan, err := scanner.AnalyzeFile(ctx, path, crop)
	if err != nil {
		return err
	}

	if !scan.Found() {
		log.Warn(app.AlertNoPlastic)
	}
	for _, det := range scan.Detections {
		log.WithField("box", fmt.Sprintf("%.0f,%.0f-%.0f,%.0f",
			det.BoundingBox.X1, det.BoundingBox.Y1, det.BoundingBox.X2, det.BoundingBox.Y2)).
			Info(annotate.Label(det))
	}

	imgPath, jsonPath, err := scanner.Save(scan, outDir)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{"image": imgPath, "report": jsonPath}).Info("Results written")
	return nil
}

func serve(ctx context.Context, cfg *config.Config, detector client.Detector, scanner *plasticdetector.Scanner, log *logrus.Logger) error {
	renderer, err := annotate.New()
	if err != nil {
		return err
	}

	ctrl, err := app.NewController(app.Options{
		Detector: detector,
		Device:   newDevice(cfg),
		Capture: capture.Options{
			Constraints: capture.Constraints{
				FacingMode: cfg.Camera.FacingMode,
				Width:      cfg.Camera.Width,
				Height:     cfg.Camera.Height,
			},
			Quality:       cfg.Camera.Quality,
			FrameInterval: cfg.Camera.FrameInterval,
		},
		CropPercentage: float64(cfg.Processing.CropPercentage),
		Quality:        cfg.Processing.JPEGQuality,
		Notifier: app.NotifierFunc(func(alert string) {
			log.WithField("alert", alert).Warn("Scan did not reach results")
		}),
		Logger: log,
	})
	if err != nil {
		return err
	}
	defer ctrl.Shutdown()

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	ctrl.Init(initCtx)
	cancel()

	server := web.NewServer(ctrl, renderer, cfg.Server.Addr, log)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(ctx)
	})
	if cfg.Output.SaveResults {
		g.Go(func() error {
			saveResults(ctx, ctrl, scanner, cfg.Output.Dir, log)
			return nil
		})
	}
	return g.Wait()
}

// saveResults writes every scan that reaches the results screen
func saveResults(ctx context.Context, ctrl *app.Controller, scanner *plasticdetector.Scanner, dir string, log *logrus.Logger) {
	views, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()

	var last string
	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-views:
			if !ok {
				return
			}
			if v.Screen != app.ScreenResults || v.Processed == last {
				continue
			}
			last = v.Processed

			scan, err := scanner.Annotate(v.Processed, v.Detections, v.SmartCrop)
			if err != nil {
				log.WithError(err).Error("Failed to annotate scan")
				continue
			}
			imgPath, _, err := scanner.Save(scan, dir)
			if err != nil {
				log.WithError(err).Error("Failed to save scan")
				continue
			}
			log.WithField("image", imgPath).Info("Scan saved")
		}
	}
}
