package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"sync"
	"syscall"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/device"
	"github.com/ayusman/mudra/internal/events"
	"github.com/ayusman/mudra/internal/feedback"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/home"
	"github.com/ayusman/mudra/internal/ledboard"
	"github.com/ayusman/mudra/internal/monitoring"
	"github.com/ayusman/mudra/internal/plugin"
	"github.com/ayusman/mudra/internal/remote"
	"github.com/ayusman/mudra/internal/security"
	"github.com/ayusman/mudra/internal/server"
	"github.com/ayusman/mudra/internal/store"
	"github.com/ayusman/mudra/internal/tray"
)

func main() {
	configPath := flag.String("config", "", "path to a JSON config file")
	flag.Parse()

	fmt.Println("Mudra - Gesture, Face and Voice Home Control")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, stop, cfg); err != nil {
		log.Fatalf("Mudra failed: %v", err)
	}
}

func run(ctx context.Context, stop context.CancelFunc, cfg *config.Config) error {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	st, err := store.New(cfg.DatabasePath())
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer st.Close()

	var remoteStore device.RemoteStore
	if cfg.Remote.URL != "" {
		client, err := remote.New(remote.Config{
			BaseURL:      cfg.Remote.URL,
			AuthToken:    cfg.Remote.AuthToken,
			Timeout:      cfg.Remote.Timeout.Duration,
			MaxFailures:  cfg.Remote.MaxFailures,
			ResetTimeout: cfg.Remote.ResetTimeout.Duration,
		}, nil)
		if err != nil {
			return err
		}
		remoteStore = client
	}

	var publisher events.Publisher = events.Nop{}
	if len(cfg.Kafka.Brokers) > 0 {
		kp, err := events.NewKafkaPublisher(events.KafkaConfig{
			Brokers:       cfg.Kafka.Brokers,
			DeviceTopic:   cfg.Kafka.DeviceTopic,
			SecurityTopic: cfg.Kafka.SecurityTopic,
		})
		if err != nil {
			return err
		}
		publisher = kp
	}
	defer publisher.Close()

	hub := server.NewHub()
	outputs := feedback.Multi{hub, feedback.Log{}}
	var speaker *feedback.CommandSpeaker
	if cfg.Speech.Command != "" {
		speaker = feedback.NewCommandSpeaker(cfg.Speech.Command, cfg.Speech.Args, cfg.Speech.Timeout.Duration)
		outputs = append(outputs, speaker)
	}
	gate := home.NewFeedbackGate(outputs)

	sink := device.NewSink(device.Options{
		Names:         cfg.Devices,
		Remote:        remoteStore,
		Fallback:      st,
		Feedback:      gate,
		RemoteTimeout: cfg.Remote.Timeout.Duration,
	})
	if err := sink.Load(ctx); err != nil {
		monitoring.Logf("main: starting with all devices off: %v", err)
	}
	sink.AddListener(hub)

	bridge := events.NewBridge(publisher, nil)
	sink.AddListener(bridge)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		bridge.Run(ctx)
	}()

	plugins := plugin.NewManager(cfg.PluginDir())
	if err := plugins.Discover(); err != nil {
		monitoring.Logf("main: plugins disabled: %v", err)
	}
	dispatcher := plugin.NewDispatcher(plugins, plugin.NewExecutor(cfg.Plugins.Timeout.Duration))
	sink.AddListener(dispatcher)
	wg.Add(1)
	go func() {
		defer wg.Done()
		dispatcher.Run(ctx)
	}()

	if cfg.Serial.Port != "" {
		board, err := ledboard.Open(cfg.Serial.Port, cfg.Serial.Baud)
		if err != nil {
			monitoring.Logf("main: LED board disabled: %v", err)
		} else {
			defer board.Close()
			if err := board.Sync(sink.Devices()); err != nil {
				monitoring.Logf("main: LED board sync failed: %v", err)
			}
			sink.AddListener(board)
		}
	}

	alerts := security.AlerterFunc(func(ev store.SecurityEvent) {
		hub.Alert(ev)
		dispatcher.Alert(ev)
	})
	monitor := security.NewMonitor(security.MonitorConfig{
		Gate: gesture.ConfirmConfig{
			Period:       cfg.Security.ConfirmPeriod.Duration,
			RequiredHits: cfg.Security.RequiredHits,
		},
		Recorder:  st.SecurityEvents(),
		Publisher: publisher,
		Alerter:   alerts,
		Armed:     cfg.Security.Armed,
	})

	defaults := home.DefaultSettings()
	defaults.GesturesEnabled = cfg.Gesture.Enabled
	defaults.Armed = cfg.Security.Armed

	h := home.New(home.Config{
		Sink:     sink,
		Monitor:  monitor,
		Feedback: gate,
		Settings: st.Settings(),
		Faces:    st.Faces(),
		Events:   st.SecurityEvents(),
		Debounce: gesture.DebounceConfig{
			Delay:    cfg.Gesture.DebounceDelay.Duration,
			Cooldown: cfg.Gesture.Cooldown.Duration,
		},
		Defaults: &defaults,
	})
	if err := h.Init(ctx); err != nil {
		return err
	}
	defer h.Close()
	h.AddStatusListener(hub)

	var frames server.FrameSource
	if cfg.Camera.Enabled {
		pipeline := newPipeline(cfg, h)
		if err := pipeline.Start(ctx); err != nil {
			monitoring.Logf("main: camera disabled: %v", err)
		} else {
			defer pipeline.Stop()
			frames = pipeline.Frames()
		}
	}

	staticDir := cfg.StaticDir
	if staticDir == "" {
		staticDir = findWebDir(cfg.DataDir)
	}
	if staticDir != "" {
		fmt.Printf("Serving static files from: %s\n", staticDir)
	}

	srv := server.New(server.Config{
		StaticDir:  staticDir,
		Controller: h,
		Hub:        hub,
		Frames:     frames,
		AccessLog:  os.Stdout,
	})

	errc := make(chan error, 1)
	go func() {
		err := srv.Run(ctx, cfg.ListenAddr)
		if err != nil {
			stop()
		}
		errc <- err
	}()

	if cfg.Tray {
		t := tray.New()
		t.OnGestures(func(enabled bool) {
			if err := h.SetGesturesEnabled(ctx, enabled); err != nil {
				monitoring.Logf("main: %v", err)
			}
		})
		t.OnArmed(func(armed bool) {
			if err := h.SetArmed(ctx, armed); err != nil {
				monitoring.Logf("main: %v", err)
			}
		})
		t.OnSettings(func() { openBrowser(settingsURL(cfg.ListenAddr)) })
		t.OnQuit(stop)
		h.AddStatusListener(t)
		t.StatusChanged(h.Status())

		go func() {
			<-ctx.Done()
			t.Quit()
		}()
		// systray needs the main goroutine.
		t.Run()
		stop()
	}

	err := <-errc
	stop()
	wg.Wait()
	sink.Wait()
	if speaker != nil {
		speaker.Wait()
	}
	return err
}

// newPipeline builds the camera pipelines. MediaPipe is preferred for hands;
// without it the pipeline runs motion detection only.
func newPipeline(cfg *config.Config, h *home.Home) *app.App {
	var hands detector.HandDetector
	mp, err := detector.NewMediaPipeDetector(detector.Config{
		MaxHands:      1,
		MinConfidence: detector.DefaultConfig().MinConfidence,
		Script:        cfg.Camera.HandScript,
		Python:        cfg.Camera.Python,
	})
	if err != nil {
		monitoring.Logf("main: hand detection disabled: %v", err)
		hands = detector.NewMockDetector()
	} else {
		hands = mp
	}

	var faces detector.FaceDetector
	if cfg.Camera.FaceCascade != "" {
		cascade, err := detector.NewCascadeFaceDetector(cfg.Camera.FaceCascade, cfg.Camera.EyeCascade)
		if err != nil {
			monitoring.Logf("main: face detection disabled: %v", err)
		} else {
			faces = cascade
		}
	}

	return app.New(app.Config{
		Camera:           capture.NewCamera(cfg.Camera.DeviceID),
		Hands:            hands,
		Faces:            faces,
		Controller:       h,
		MotionThreshold:  cfg.Camera.MotionThreshold,
		IdleFPS:          cfg.Camera.IdleFPS,
		ActiveFPS:        cfg.Camera.ActiveFPS,
		IdleTimeout:      capture.IdleTimeout,
		FacePollInterval: cfg.Camera.FacePollInterval.Duration,
	})
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and <dataDir>/web.
// Returns the first existing directory or empty string if none found.
func findWebDir(dataDir string) string {
	for _, p := range []string{"web", "../web", "../../web", filepath.Join(dataDir, "web")} {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}
	return ""
}

func settingsURL(addr string) string {
	host := addr
	if len(host) > 0 && host[0] == ':' {
		host = "localhost" + host
	}
	return "http://" + host + "/#settings"
}

func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		monitoring.Logf("main: failed to open browser: %v", err)
		return
	}
	go cmd.Wait()
}
