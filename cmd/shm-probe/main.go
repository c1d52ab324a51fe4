package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image/jpeg"
	"image/png"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	shmbridge "github.com/e7canasta/orion-care-sensor/modules/shm-bridge"
	"github.com/e7canasta/orion-care-sensor/modules/shm-bridge/internal/warmup"
)

// Version information
const version = "v0.1.0"

func main() {
	// Parse command-line flags
	socketPath := flag.String("path", "", "Shared-memory socket path (required unless --config)")
	name := flag.String("name", "", "Reader name (default: generated)")
	workers := flag.Int("workers", shmbridge.DefaultWorkers, "Row bands converted in parallel for I420 frames")
	configPath := flag.String("config", "", "YAML config file with a reader section (optional; --path, --name and --workers override it)")
	outputDir := flag.String("output", "", "Directory to save received frames (optional)")
	outputFormat := flag.String("format", "png", "Output format: png, jpeg, bmp, tiff")
	jpegQuality := flag.Int("jpeg-quality", 90, "JPEG quality (1-100, only for jpeg format)")
	maxFrames := flag.Int("max-frames", 0, "Maximum frames to receive (0 = unlimited)")
	maxRate := flag.Float64("max-rate", 1.0, "Upper bound for the suggested processing rate (Hz)")
	statsInterval := flag.Int("stats-interval", 10, "Seconds between stats reports")
	warmupDuration := flag.Duration("warmup", 5*time.Second, "Warm-up duration")
	skipWarmup := flag.Bool("skip-warmup", false, "Skip delivery rate warm-up")
	debug := flag.Bool("debug", false, "Enable debug logging")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("shm-probe %s\n", version)
		os.Exit(0)
	}

	// Set up logging
	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	fs := afero.NewOsFs()

	cfg := shmbridge.ReaderConfig{Name: *name, Workers: *workers}
	path := *socketPath
	if *configPath != "" {
		fileCfg, err := shmbridge.LoadConfig(fs, *configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		if fileCfg.Reader == nil {
			log.Fatalf("Config %s has no reader section", *configPath)
		}
		cfg = fileCfg.Reader.ReaderConfig()
		if path == "" {
			path = fileCfg.Reader.Path
		}
		applyOverrides(&cfg, flag.CommandLine, *name, *workers)
	}

	if path == "" {
		fmt.Fprintf(os.Stderr, "Error: --path or --config is required\n\n")
		fmt.Fprintf(os.Stderr, "Usage example:\n")
		fmt.Fprintf(os.Stderr, "  shm-probe --path /tmp/shm-cam0\n")
		fmt.Fprintf(os.Stderr, "  shm-probe --path /tmp/shm-cam0 --output ./frames --format tiff\n\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	switch *outputFormat {
	case "png", "jpeg", "bmp", "tiff":
	default:
		log.Fatalf("Invalid output format: %s (must be png, jpeg, bmp or tiff)", *outputFormat)
	}

	if *outputDir != "" {
		if err := fs.MkdirAll(*outputDir, 0o755); err != nil {
			log.Fatalf("Failed to create output directory: %v", err)
		}
		slog.Info("Frame saving enabled", "directory", *outputDir, "format", *outputFormat)
	}

	fmt.Printf("\n")
	fmt.Printf("Shared-memory probe %s\n", version)
	fmt.Printf("  Socket Path:   %s\n", path)
	fmt.Printf("  Workers:       %d\n", cfg.Workers)
	if *outputDir != "" {
		fmt.Printf("  Output Dir:    %s\n", *outputDir)
	} else {
		fmt.Printf("  Output Dir:    (none - frames not saved)\n")
	}
	if *maxFrames > 0 {
		fmt.Printf("  Max Frames:    %d\n", *maxFrames)
	} else {
		fmt.Printf("  Max Frames:    unlimited\n")
	}
	fmt.Printf("\n")

	reader, err := shmbridge.OpenReader(cfg, path)
	if err != nil {
		log.Fatalf("Failed to open reader: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			fmt.Printf("\n\nReceived interrupt signal, shutting down...\n")
			cancel()
		case <-ctx.Done():
		}
	}()

	if !*skipWarmup {
		fmt.Printf("Running warm-up (%s) to measure delivery stability...\n", *warmupDuration)
		stats, err := reader.Warmup(ctx, *warmupDuration)
		switch {
		case stats != nil:
			printWarmup(stats, *maxRate)
			if err != nil {
				fmt.Printf("WARNING: %v\n\n", err)
			}
		case errors.Is(err, context.Canceled):
			shutdown(reader, time.Now())
			return
		default:
			slog.Warn("Warm-up failed, continuing", "error", err)
		}
	}

	startTime := time.Now()

	statsTicker := time.NewTicker(time.Duration(*statsInterval) * time.Second)
	defer statsTicker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-statsTicker.C:
				printStats(reader.Stats(), time.Since(startTime))
			}
		}
	}()

	framesSaved := 0
	frameCount := 0
	for {
		ev, err := reader.WaitFrame(ctx)
		if err != nil {
			break
		}
		frameCount++

		fmt.Printf("[%s] Frame #%-6d | Seq: %-8d | %s | Timestamp: %s\n",
			time.Now().Format("15:04:05"),
			frameCount,
			ev.Seq,
			ev.Spec,
			ev.Timestamp.Format("15:04:05.000"),
		)

		if *outputDir != "" {
			if fb, _ := reader.Latest(); fb != nil {
				if err := saveFrame(fs, *outputDir, ev, fb, *outputFormat, *jpegQuality); err != nil {
					slog.Error("Failed to save frame", "error", err, "seq", ev.Seq)
				} else {
					framesSaved++
				}
			}
		}

		if *maxFrames > 0 && frameCount >= *maxFrames {
			fmt.Printf("\nReached maximum frames (%d), stopping...\n", *maxFrames)
			cancel()
			break
		}
	}

	shutdown(reader, startTime)
	if *outputDir != "" {
		fmt.Printf("  Frames Saved:       %d frames\n", framesSaved)
	}
	slog.Info("Probe completed")
}

// applyOverrides copies the reader flags set explicitly on fset into cfg,
// so the command line wins over a config file.
func applyOverrides(cfg *shmbridge.ReaderConfig, fset *flag.FlagSet, name string, workers int) {
	fset.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "name":
			cfg.Name = name
		case "workers":
			cfg.Workers = workers
		}
	})
}

func shutdown(reader *shmbridge.Reader, startTime time.Time) {
	stats := reader.Stats()

	slog.Info("Stopping reader...")
	if err := reader.Close(); err != nil {
		slog.Error("Error stopping reader", "error", err)
	}

	fmt.Printf("\n")
	fmt.Printf("Final Statistics\n")
	fmt.Printf("  Total Uptime:       %s\n", time.Since(startTime).Round(time.Second))
	fmt.Printf("  Deliveries:         %d\n", stats.Deliveries)
	fmt.Printf("  Frames:             %d\n", stats.Frames)
	fmt.Printf("  Dropped:            %d\n", stats.Drops.Total())
	fmt.Printf("  Callback P95:       %.2f ms\n", stats.Latency.P95MS)
}

func printWarmup(stats *shmbridge.WarmupStats, maxRate float64) {
	fmt.Printf("\n")
	fmt.Printf("Warm-up Complete\n")
	fmt.Printf("  Frames Received:    %6d frames\n", stats.FramesReceived)
	fmt.Printf("  Duration:           %6.1f seconds\n", stats.Duration.Seconds())
	fmt.Printf("  FPS Mean:           %6.2f fps\n", stats.FPSMean)
	fmt.Printf("  FPS StdDev:         %6.2f fps\n", stats.FPSStdDev)
	fmt.Printf("  FPS Range:          %6.1f - %.1f fps\n", stats.FPSMin, stats.FPSMax)
	fmt.Printf("  Jitter Mean:        %6.3f s\n", stats.JitterMean)
	fmt.Printf("  Jitter Max:         %6.3f s\n", stats.JitterMax)
	fmt.Printf("  Stable:             %6v\n", stats.IsStable)
	fmt.Printf("  Suggested Rate:     %6.2f Hz\n", warmup.SuggestedRate(stats, maxRate))
	fmt.Printf("\n")
}

func printStats(stats shmbridge.ReaderStats, uptime time.Duration) {
	fmt.Printf("\n")
	fmt.Printf("Reader Statistics (Uptime: %s)\n", uptime.Round(time.Second))
	fmt.Printf("  Descriptor:         %s\n", stats.Descriptor)
	fmt.Printf("  Deliveries:         %6d\n", stats.Deliveries)
	fmt.Printf("  Frames:             %6d\n", stats.Frames)
	fmt.Printf("  Notify Drops:       %6d\n", stats.NotifyDrops)
	if d := stats.Drops; d.Total() > 0 {
		fmt.Printf("  Drops:              %6d (geometry %d, format %d, layout %d, short %d, conversion %d)\n",
			d.Total(), d.IncompleteGeometry, d.UnsupportedFormat, d.UnsupportedChannelLayout, d.ShortPayload, d.Conversion)
	}
	fmt.Printf("  Callback Latency:   mean %.2f ms, p95 %.2f ms, max %.2f ms\n",
		stats.Latency.MeanMS, stats.Latency.P95MS, stats.Latency.MaxMS)
	if t := stats.Transport; t != nil {
		fmt.Printf("  Bytes Read:         %6.2f MB\n", float64(t.BytesRead)/1024/1024)
		fmt.Printf("  Reconnects:         %6d\n", t.Reconnects)
		if e := t.Errors; e.Transport+e.Negotiation+e.Resource+e.Unknown > 0 {
			fmt.Printf("  Errors:             transport %d, negotiation %d, resource %d, unknown %d\n",
				e.Transport, e.Negotiation, e.Resource, e.Unknown)
		}
	}
	fmt.Printf("\n")
}

// saveFrame encodes fb into outputDir in the requested format.
func saveFrame(fs afero.Fs, outputDir string, ev shmbridge.FrameEvent, fb *shmbridge.FrameBuffer, format string, jpegQuality int) error {
	img, err := fb.Image()
	if err != nil {
		return fmt.Errorf("failed to wrap frame: %w", err)
	}

	filename := fmt.Sprintf("frame_%06d_%s.%s", ev.Seq, ev.Timestamp.Format("20060102_150405.000"), format)
	file, err := fs.Create(filepath.Join(outputDir, filename))
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	switch format {
	case "png":
		err = png.Encode(file, img)
	case "jpeg":
		err = jpeg.Encode(file, img, &jpeg.Options{Quality: jpegQuality})
	case "bmp":
		err = bmp.Encode(file, img)
	case "tiff":
		err = tiff.Encode(file, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", format, err)
	}
	return nil
}
