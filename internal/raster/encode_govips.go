//go:build govips && cgo

package raster

import (
	"bytes"
	"fmt"
	"image/png"
	"sync"

	"github.com/davidbyttow/govips/v2/vips"
)

var (
	startupOnce sync.Once
	shutdownMu  sync.Mutex
	started     bool
)

// Startup initialises libvips once per process.
func Startup() error {
	startupOnce.Do(func() {
		vips.Startup(&vips.Config{
			MaxCacheFiles: 0,
			MaxCacheMem:   64 * 1024 * 1024,
			MaxCacheSize:  50,
		})

		shutdownMu.Lock()
		started = true
		shutdownMu.Unlock()
	})
	return nil
}

func Shutdown() {
	shutdownMu.Lock()
	defer shutdownMu.Unlock()
	if !started {
		return
	}
	vips.Shutdown()
	started = false
}

func WebPEncodeSupported() bool {
	return true
}

// encodeWebP hands libvips a lossless PNG of the buffer and exports WebP from
// it, so vips never sees the original source bytes or their metadata.
func encodeWebP(buf *Buffer, quality int) ([]byte, error) {
	if err := Startup(); err != nil {
		return nil, err
	}

	var staged bytes.Buffer
	encoder := png.Encoder{CompressionLevel: png.NoCompression}
	if err := encoder.Encode(&staged, buf.Image()); err != nil {
		return nil, fmt.Errorf("stage webp source: %w", err)
	}

	img, err := vips.NewImageFromBuffer(staged.Bytes())
	if err != nil {
		return nil, fmt.Errorf("load webp source: %w", err)
	}
	defer img.Close()

	params := vips.NewWebpExportParams()
	params.StripMetadata = true
	if quality > 0 && quality <= 100 {
		params.Quality = quality
	}
	data, _, err := img.ExportWebp(params)
	if err != nil {
		return nil, fmt.Errorf("encode webp: %w", err)
	}
	return data, nil
}
