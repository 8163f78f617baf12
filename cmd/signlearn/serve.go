package main

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ayusman/signlearn/internal/app"
	"github.com/ayusman/signlearn/internal/capture"
	"github.com/ayusman/signlearn/internal/pipeline"
	"github.com/ayusman/signlearn/internal/server"
	"github.com/ayusman/signlearn/internal/sink"
	"github.com/ayusman/signlearn/internal/tray"
)

type serveOptions struct {
	addr      string
	camera    bool
	tray      bool
	target    string
	staticDir string
}

func newServeCmd(c *cli) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket server",
		Long: `Serve the practice page and the /api/session WebSocket. Every browser
connection gets its own session and sliding window. With --camera a local
capture loop feeds one more session from the webcam.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), c, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.addr, "addr", "", "listen address (default from SIGNLEARN_HTTP_ADDR)")
	flags.BoolVar(&opts.camera, "camera", false, "capture from the local webcam")
	flags.BoolVar(&opts.tray, "tray", false, "show a system tray menu (requires --camera)")
	flags.StringVar(&opts.target, "target", "", "sign the camera session is practicing")
	flags.StringVar(&opts.staticDir, "static", "", "static files directory")
	return cmd
}

func runServe(ctx context.Context, c *cli, opts *serveOptions) error {
	if opts.tray && !opts.camera {
		return errors.New("--tray requires --camera")
	}
	cfg, logger := c.cfg, c.logger

	addr := opts.addr
	if addr == "" {
		addr = cfg.HTTPAddr
	}
	staticDir := opts.staticDir
	if staticDir == "" {
		staticDir = cfg.StaticDir
	}
	webDir := findWebDir(staticDir)
	if webDir != "" {
		logger.Info("serving static files", "dir", webDir)
	} else {
		logger.Warn("no static directory found, only the API is served")
	}

	backend, err := c.openBackend(ctx)
	if err != nil {
		return err
	}
	defer backend.Close()

	predictor := c.predictor()
	registry := pipeline.NewRegistry()
	hub := server.NewLandmarksHub(logger)

	sinks := []pipeline.Sink{sink.NewLog(logger)}
	if cfg.HookCommand != "" {
		hook, err := sink.NewExec(sink.ExecConfig{
			Command:     cfg.HookCommand,
			Timeout:     cfg.HookTimeout,
			MatchedOnly: true,
			Logger:      logger,
		})
		if err != nil {
			return err
		}
		defer hook.Close()
		sinks = append(sinks, hook)
	}

	srvCfg := server.Config{
		StaticDir:  webDir,
		Store:      backend,
		Registry:   registry,
		Predictor:  predictor,
		WindowSize: cfg.WindowSize,
		Sinks:      sinks,
		Landmarks:  hub,
		Logger:     logger,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var t *tray.Tray
	if opts.camera {
		preview := capture.NewPreview()
		srvCfg.Preview = preview

		recorder := sink.NewRecorder(backend, logger)
		camSinks := pipeline.Sinks{recorder, hub}
		camSinks = append(camSinks, sinks...)
		if opts.tray {
			t = tray.New(opts.target)
			camSinks = append(camSinks, t)
		}

		a, err := app.New(app.Config{
			CameraID:        cfg.CameraID,
			MotionThreshold: cfg.MotionThreshold,
			Predictor:       predictor,
			WindowSize:      cfg.WindowSize,
			Target:          opts.target,
			Sink:            camSinks,
			Preview:         preview,
			Logger:          logger,
		})
		if err != nil {
			return err
		}
		defer a.Close()

		session := a.Session()
		if err := recorder.Begin(ctx, session); err != nil {
			return err
		}
		registry.Add(session)
		defer func() {
			a.Stop()
			registry.Remove(session.ID())
			endCtx, endCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer endCancel()
			if err := recorder.End(endCtx, session); err != nil {
				logger.Error("failed to record session end", "error", err)
			}
		}()

		if t != nil {
			a.SetEnabled(t.IsEnabled())
		}
		if err := a.Start(); err != nil {
			return fmt.Errorf("start camera: %w", err)
		}
		go func() {
			<-ctx.Done()
			a.Stop()
		}()

		if t != nil {
			t.OnToggle(a.SetEnabled)
			t.OnOpen(func() { openBrowser(browserURL(addr)) })
			t.OnQuit(cancel)
		}
	}

	srv := server.New(srvCfg)
	logger.Info("starting server", "addr", addr, "inference", predictor.Endpoint())

	if t == nil {
		return srv.Run(ctx, addr)
	}

	// systray needs the main goroutine, so the server runs beside it.
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run(ctx, addr)
		t.Quit()
	}()
	t.Run()
	cancel()
	return <-errCh
}

// browserURL turns a listen address into a URL a local browser can open.
func browserURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr
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
	if err := cmd.Start(); err == nil {
		go cmd.Wait()
	}
}
