package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/color"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"

	shmbridge "github.com/e7canasta/orion-care-sensor/modules/shm-bridge"
	"github.com/e7canasta/orion-care-sensor/modules/shm-bridge/internal/framebuf"
)

// Version information
const version = "v0.1.0"

func main() {
	socketPath := flag.String("path", "", "Shared-memory socket path (required unless --config)")
	name := flag.String("name", "", "Writer name (default: generated)")
	configPath := flag.String("config", "", "YAML config file with a writer section (optional; --path and --name override it)")
	pixelFormat := flag.String("format", "rgba", "Pattern format: rgba, gray16")
	width := flag.Int("width", 640, "Frame width")
	height := flag.Int("height", 480, "Frame height")
	fps := flag.Float64("fps", 60, "Frames per second (0.1-240)")
	maxFrames := flag.Int("max-frames", 0, "Frames to publish (0 = unlimited)")
	resizeEvery := flag.Int("resize-every", 0, "Swap width and height every N frames to exercise renegotiation (0 = never)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("shm-pattern %s\n", version)
		os.Exit(0)
	}

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfg := shmbridge.WriterConfig{Name: *name, Path: *socketPath}
	if *configPath != "" {
		fileCfg, err := shmbridge.LoadConfig(afero.NewOsFs(), *configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		if fileCfg.Writer == nil {
			log.Fatalf("Config %s has no writer section", *configPath)
		}
		cfg = fileCfg.Writer.WriterConfig()

		// Flags given on the command line override the file.
		flag.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "path":
				cfg.Path = *socketPath
			case "name":
				cfg.Name = *name
			}
		})
	}

	if cfg.Path == "" {
		fmt.Fprintf(os.Stderr, "Error: --path or --config is required\n\n")
		fmt.Fprintf(os.Stderr, "Usage example:\n")
		fmt.Fprintf(os.Stderr, "  shm-pattern --path /tmp/shm-cam0\n")
		fmt.Fprintf(os.Stderr, "  shm-pattern --path /tmp/shm-depth --format gray16 --fps 30\n\n")
		flag.PrintDefaults()
		os.Exit(1)
	}
	if *fps < 0.1 || *fps > 240 {
		log.Fatalf("Invalid fps: %.2f (must be 0.1-240)", *fps)
	}
	if *width <= 0 || *height <= 0 {
		log.Fatalf("Invalid geometry: %dx%d", *width, *height)
	}

	var draw func(w, h, frame int) *shmbridge.FrameBuffer
	switch *pixelFormat {
	case "rgba":
		draw = drawRGBA
	case "gray16":
		draw = drawGray16
	default:
		log.Fatalf("Invalid format: %s (must be rgba or gray16)", *pixelFormat)
	}

	writer, err := shmbridge.NewWriter(cfg)
	if err != nil {
		log.Fatalf("Failed to create writer: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	interval := time.Duration(float64(time.Second) / *fps)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("Publishing pattern",
		"path", cfg.Path,
		"format", *pixelFormat,
		"width", *width,
		"height", *height,
		"fps", *fps,
	)

	w, h := *width, *height
	frame := 0
loop:
	for {
		select {
		case <-sigChan:
			fmt.Printf("\n\nReceived interrupt signal, shutting down...\n")
			cancel()
			break loop
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			if *resizeEvery > 0 && frame > 0 && frame%*resizeEvery == 0 {
				w, h = h, w
			}
			if !writer.Push(draw(w, h, frame)) {
				slog.Warn("Push failed", "frame", frame, "error", writer.Err())
			}
			frame++
			if *maxFrames > 0 && frame >= *maxFrames {
				break loop
			}
		}
	}

	stats := writer.Stats()
	if err := writer.Close(); err != nil {
		slog.Error("Error closing writer", "error", err)
	}

	fmt.Printf("\n")
	fmt.Printf("Final Statistics\n")
	fmt.Printf("  Frames Published:   %d\n", stats.Frames)
	fmt.Printf("  Renegotiations:     %d\n", stats.Renegotiations)
	fmt.Printf("  Open Failures:      %d\n", stats.OpenFailures)
	fmt.Printf("  Push Failures:      %d\n", stats.PushFailures)
	if t := stats.Transport; t != nil {
		fmt.Printf("  Bytes Pushed:       %.2f MB\n", float64(t.BytesPushed)/1024/1024)
	}
}

// drawRGBA renders diagonal color bands that scroll one pixel per frame.
func drawRGBA(w, h, frame int) *shmbridge.FrameBuffer {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := x + y + frame
			img.SetRGBA(x, y, color.RGBA{R: uint8(v), G: uint8(v >> 1), B: uint8(255 - v), A: 255})
		}
	}
	return framebuf.FromImage(img)
}

// drawGray16 renders a horizontal ramp that shifts with the frame number.
func drawGray16(w, h, frame int) *shmbridge.FrameBuffer {
	img := image.NewGray16(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray16(x, y, color.Gray16{Y: uint16((x*65535/w + frame*256) & 0xffff)})
		}
	}
	return framebuf.FromImage(img)
}
