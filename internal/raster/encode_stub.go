//go:build !govips || !cgo

package raster

import "fmt"

// Startup prepares optional native codecs. Without the govips build tag there
// is nothing to start.
func Startup() error {
	return nil
}

func Shutdown() {}

// WebPEncodeSupported reports whether Encode can produce image/webp.
func WebPEncodeSupported() bool {
	return false
}

func encodeWebP(_ *Buffer, _ int) ([]byte, error) {
	return nil, fmt.Errorf("%w: webp export requires govips build tag", ErrUnsupportedEncodeFormat)
}
