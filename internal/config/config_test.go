package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("PIXELTOOLS_API_ADDR", "")
	t.Setenv("PIXELTOOLS_MAX_PIXELS", "")

	cfg := Load()
	if cfg.API.Addr != ":8080" {
		t.Fatalf("expected :8080, got %s", cfg.API.Addr)
	}
	if cfg.Database.DSN != "" {
		t.Fatalf("expected empty DSN selecting the memory store, got %q", cfg.Database.DSN)
	}
	if cfg.Worker.MaxActiveJobs < 1 || cfg.Worker.Concurrency < 2 {
		t.Fatalf("unexpected worker defaults %+v", cfg.Worker)
	}
	if cfg.Raster.DefaultJPEGQuality != 80 {
		t.Fatalf("expected jpeg quality 80, got %d", cfg.Raster.DefaultJPEGQuality)
	}
	if cfg.Raster.MaxPixels != 1<<28 {
		t.Fatalf("expected max pixels %d, got %d", 1<<28, cfg.Raster.MaxPixels)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PIXELTOOLS_API_ADDR", ":9000")
	t.Setenv("PIXELTOOLS_MAX_UPLOAD_BYTES", "1048576")
	t.Setenv("PIXELTOOLS_PRESIGN_TTL", "2m")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("RATE_LIMIT_ENABLED", "false")
	t.Setenv("RATE_LIMIT_WINDOW", "30s")
	t.Setenv("WEBHOOK_MAX_ATTEMPTS", "7")
	t.Setenv("OTEL_TRACES_SAMPLE_RATIO", "0.25")

	cfg := Load()
	if cfg.API.Addr != ":9000" || cfg.API.MaxUploadBytes != 1<<20 || cfg.API.PresignTTL != 2*time.Minute {
		t.Fatalf("unexpected api config %+v", cfg.API)
	}
	if cfg.Queue.RedisDB != 3 || cfg.Queue.RedisOptions().DB != 3 || cfg.Queue.RedisClientOpt().DB != 3 {
		t.Fatalf("expected redis db 3, got %+v", cfg.Queue)
	}
	if cfg.RateLimit.Enabled || cfg.RateLimit.Window != 30*time.Second {
		t.Fatalf("unexpected rate limit config %+v", cfg.RateLimit)
	}
	if cfg.Webhook.MaxAttempts != 7 {
		t.Fatalf("expected 7 webhook attempts, got %d", cfg.Webhook.MaxAttempts)
	}
	if cfg.Tracing.SampleRatio != 0.25 {
		t.Fatalf("expected sample ratio 0.25, got %v", cfg.Tracing.SampleRatio)
	}
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("REDIS_DB", "two")
	t.Setenv("MINIO_USE_SSL", "maybe")
	t.Setenv("RATE_LIMIT_WINDOW", "-5s")
	t.Setenv("PIXELTOOLS_PRESIGN_TTL", "soon")

	cfg := Load()
	if cfg.Queue.RedisDB != 0 {
		t.Fatalf("expected fallback db 0, got %d", cfg.Queue.RedisDB)
	}
	if cfg.Storage.UseSSL {
		t.Fatal("expected fallback UseSSL=false")
	}
	if cfg.RateLimit.Window != time.Minute {
		t.Fatalf("expected fallback window 1m, got %s", cfg.RateLimit.Window)
	}
	if cfg.API.PresignTTL != 15*time.Minute {
		t.Fatalf("expected fallback presign ttl, got %s", cfg.API.PresignTTL)
	}
}
