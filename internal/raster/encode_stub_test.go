//go:build !govips || !cgo

package raster

import (
	"errors"
	"testing"
)

func TestEncodeWebPRequiresGovips(t *testing.T) {
	if WebPEncodeSupported() {
		t.Fatal("expected webp encode to be unavailable without govips")
	}
	if _, err := Encode(gradientBuffer(t, 2, 2), MIMEWebP, 80); !errors.Is(err, ErrUnsupportedEncodeFormat) {
		t.Fatalf("expected ErrUnsupportedEncodeFormat, got %v", err)
	}
}
