package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli"
	"github.com/valerio/go-scribble/scribble"
	"github.com/valerio/go-scribble/scribble/backend"
	"github.com/valerio/go-scribble/scribble/backend/headless"
	"github.com/valerio/go-scribble/scribble/backend/sdl2"
	"github.com/valerio/go-scribble/scribble/backend/terminal"
	"github.com/valerio/go-scribble/scribble/config"
	"github.com/valerio/go-scribble/scribble/script"
)

func main() {
	err := newApp().Run(os.Args)
	if err != nil {
		slog.Error("Error running scribble", "error", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "Scribble"
	app.Description = "Draw over an optional background image and record the canvas to video"
	app.Usage = "scribble [options] [background image]"
	app.Version = "1.0.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config",
			Usage: "Path to a TOML configuration file",
		},
		cli.IntFlag{
			Name:  "width",
			Usage: "Logical canvas width in pixels",
		},
		cli.IntFlag{
			Name:  "height",
			Usage: "Logical canvas height in pixels",
		},
		cli.StringFlag{
			Name:  "background",
			Usage: "Background image (PNG, JPEG, GIF, BMP, TIFF, WebP); the canvas takes its size",
		},
		cli.BoolFlag{
			Name:  "watch",
			Usage: "Reload the background image whenever the file changes",
		},
		cli.IntFlag{
			Name:  "brush-size",
			Usage: "Brush diameter in display pixels",
		},
		cli.StringFlag{
			Name:  "brush-color",
			Usage: "Brush color as #rrggbb",
		},
		cli.IntFlag{
			Name:  "fps",
			Usage: "Recording frame rate",
		},
		cli.Float64Flag{
			Name:  "opacity",
			Usage: "Opacity of the black backdrop behind recorded frames (0.0-1.0)",
		},
		cli.StringFlag{
			Name:  "encoder",
			Usage: "Video encoder: auto, ffmpeg, gif or none",
		},
		cli.StringFlag{
			Name:  "ffmpeg",
			Usage: "Path to the ffmpeg binary",
		},
		cli.StringFlag{
			Name:  "out",
			Usage: "Directory exports are written to (default: current directory)",
		},
		cli.StringFlag{
			Name:  "backend",
			Usage: "User interface: terminal, sdl2 or headless",
			Value: "terminal",
		},
		cli.IntFlag{
			Name:  "frames",
			Usage: "Number of frames to run in headless mode (0 = until interrupted)",
		},
		cli.IntFlag{
			Name:  "snapshot-interval",
			Usage: "Save display snapshots every N frames in headless mode (0 = disabled)",
		},
		cli.StringFlag{
			Name:  "snapshot-dir",
			Usage: "Directory to save display snapshots (default: temp directory)",
		},
		cli.StringFlag{
			Name:  "script",
			Usage: "Run a YAML scenario instead of an interactive session",
		},
		cli.BoolFlag{
			Name:  "print-config",
			Usage: "Print the resolved configuration as TOML and exit",
		},
		cli.BoolFlag{
			Name:  "debug",
			Usage: "Enable debug logging",
		},
	}
	app.Action = runScribble
	return app
}

func runScribble(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	if c.Bool("print-config") {
		_, err := fmt.Fprint(c.App.Writer, cfg.String())
		return err
	}

	backendName := strings.ToLower(c.String("backend"))
	if backendName != "terminal" {
		// The terminal backend routes logs into its own panel
		level := slog.LevelInfo
		if c.Bool("debug") {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if path := c.String("script"); path != "" {
		return runScript(ctx, cfg, path)
	}

	app, err := scribble.New(cfg)
	if err != nil {
		return err
	}

	b, err := newBackend(c, backendName)
	if err != nil {
		return err
	}
	return app.Run(ctx, b)
}

// loadConfig layers the config file, then flags, over the defaults
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	if c.IsSet("width") {
		cfg.Width = c.Int("width")
	}
	if c.IsSet("height") {
		cfg.Height = c.Int("height")
	}
	if c.IsSet("background") {
		cfg.Background.Path = c.String("background")
	} else if c.NArg() > 0 {
		cfg.Background.Path = c.Args().First()
	}
	if c.IsSet("watch") {
		cfg.Background.Watch = c.Bool("watch")
	}
	if c.IsSet("brush-size") {
		cfg.Brush.Size = c.Int("brush-size")
	}
	if c.IsSet("brush-color") {
		cfg.Brush.Color = c.String("brush-color")
	}
	if c.IsSet("fps") {
		cfg.Recording.FPS = c.Int("fps")
	}
	if c.IsSet("opacity") {
		cfg.Recording.BackdropOpacity = c.Float64("opacity")
	}
	if c.IsSet("encoder") {
		cfg.Recording.Encoder = c.String("encoder")
	}
	if c.IsSet("ffmpeg") {
		cfg.Recording.FFmpeg = c.String("ffmpeg")
	}
	if c.IsSet("out") {
		cfg.Output.Dir = c.String("out")
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newBackend(c *cli.Context, name string) (backend.Backend, error) {
	switch name {
	case "terminal":
		return terminal.New(), nil
	case "sdl2":
		return sdl2.New(), nil
	case "headless":
		snapshots, err := headless.CreateSnapshotConfig(c.Int("snapshot-interval"), c.String("snapshot-dir"))
		if err != nil {
			return nil, err
		}
		if c.Int("frames") <= 0 && !snapshots.Enabled {
			slog.Info("Headless mode without --frames runs until interrupted")
		}
		return headless.New(c.Int("frames"), snapshots), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", name)
	}
}

func runScript(ctx context.Context, cfg config.Config, path string) error {
	sc, err := script.Load(path)
	if err != nil {
		return err
	}

	app, err := scribble.New(cfg)
	if err != nil {
		return err
	}

	res, err := script.Run(ctx, app, sc)
	for _, s := range res.Summary {
		slog.Info("Recording finished", "summary", s)
	}
	for _, p := range res.Exports {
		slog.Info("Exported", "path", p)
	}
	if errors.Is(err, context.Canceled) {
		slog.Warn("Script interrupted")
		return nil
	}
	return err
}
