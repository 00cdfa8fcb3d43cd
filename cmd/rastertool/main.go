package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dunamismax/pixeltools/internal/domain"
	"github.com/dunamismax/pixeltools/internal/pipeline"
	"github.com/dunamismax/pixeltools/internal/raster"
)

func main() {
	var (
		in      = flag.String("in", "", "source image path")
		out     = flag.String("out", "", "output image path")
		ops     = flag.String("ops", "", "variant JSON: a file path, an inline variant object or an inline operation array")
		format  = flag.String("format", "", "output format (png, jpeg, gif, bmp, webp); defaults to the source format")
		quality = flag.Int("quality", 0, "encode quality for lossy formats")
		verbose = flag.Bool("v", false, "log stage progress")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "[rastertool] ", log.LstdFlags|log.Lmsgprefix)
	if err := run(logger, *in, *out, *ops, *format, *quality, *verbose); err != nil {
		logger.Fatalf("%v", err)
	}
}

func run(logger *log.Logger, in, out, ops, format string, quality int, verbose bool) error {
	if in == "" || out == "" || ops == "" {
		return errors.New("-in, -out and -ops are required")
	}

	variant, err := loadVariant(ops)
	if err != nil {
		return err
	}
	if format != "" {
		variant.Format = format
	}
	if quality != 0 {
		variant.Quality = quality
	}
	if err := variant.Validate(); err != nil {
		return fmt.Errorf("invalid variant: %w", err)
	}

	if verbose {
		raster.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}
	if err := raster.Startup(); err != nil {
		return fmt.Errorf("raster startup: %w", err)
	}
	defer raster.Shutdown()

	source, err := os.ReadFile(in)
	if err != nil {
		return fmt.Errorf("read source: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var progress raster.ProgressFunc
	if verbose {
		progress = func(p raster.Progress) {
			if p.Done {
				logger.Printf("stage=%d/%d op=%s percent=%d", p.Stage, p.Total, p.Name, p.Percent())
			}
		}
	}

	started := time.Now()
	result, err := pipeline.NewTransformer(0).Transform(ctx, source, "", variant, progress)
	if err != nil {
		return fmt.Errorf("transform: %w", err)
	}
	if err := os.WriteFile(out, result.Data, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	logger.Printf(
		"wrote path=%s mime=%s size=%dx%d bytes=%d elapsed=%s",
		out, result.MIME, result.Width, result.Height, len(result.Data), time.Since(started).Round(time.Millisecond),
	)
	return nil
}

// loadVariant accepts inline JSON or a path to a JSON file. The document is
// either a full variant object or a bare operation array.
func loadVariant(arg string) (domain.Variant, error) {
	data := []byte(strings.TrimSpace(arg))
	if len(data) == 0 {
		return domain.Variant{}, errors.New("empty -ops")
	}
	if data[0] != '{' && data[0] != '[' {
		fileData, err := os.ReadFile(arg)
		if err != nil {
			return domain.Variant{}, fmt.Errorf("read ops file: %w", err)
		}
		data = bytes.TrimSpace(fileData)
	}

	variant := domain.Variant{ID: "cli"}
	if len(data) > 0 && data[0] == '[' {
		if err := json.Unmarshal(data, &variant.Operations); err != nil {
			return domain.Variant{}, fmt.Errorf("decode operations: %w", err)
		}
		return variant, nil
	}

	if err := json.Unmarshal(data, &variant); err != nil {
		return domain.Variant{}, fmt.Errorf("decode variant: %w", err)
	}
	if variant.ID == "" {
		variant.ID = "cli"
	}
	return variant, nil
}
