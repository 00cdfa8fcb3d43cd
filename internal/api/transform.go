package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dunamismax/pixeltools/internal/domain"
	"github.com/dunamismax/pixeltools/internal/pipeline"
	"github.com/dunamismax/pixeltools/internal/raster"
)

const (
	HeaderImageWidth  = "X-Image-Width"
	HeaderImageHeight = "X-Image-Height"

	syncVariantID = "sync"
)

// handleTransform runs one variant inline. The multipart body carries the
// source in "image" and the variant JSON in "variant".
func (s *Server) handleTransform(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > s.maxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", s.maxUploadBytes))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", s.maxUploadBytes))
			return
		}
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid multipart body: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	source, err := readFormFile(r, "image")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	variant, err := parseVariant(r.FormValue("variant"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	started := time.Now()
	result, err := s.transformer.Transform(r.Context(), source, strings.TrimSpace(r.FormValue("source_mime")), variant, nil)
	elapsed := time.Since(started)
	if err != nil {
		status := transformErrorStatus(err)
		s.metrics.syncTransforms.WithLabelValues(statusLabel(status)).Inc()
		if status >= http.StatusInternalServerError {
			s.logger.Printf("sync transform failed bytes=%d err=%v", len(source), err)
		}
		writeError(w, status, err.Error())
		return
	}
	s.metrics.syncTransforms.WithLabelValues(statusLabel(http.StatusOK)).Inc()
	s.metrics.syncTransformDuration.Observe(elapsed.Seconds())

	w.Header().Set("Content-Type", result.MIME)
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	w.Header().Set(HeaderImageWidth, strconv.Itoa(result.Width))
	w.Header().Set(HeaderImageHeight, strconv.Itoa(result.Height))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func readFormFile(r *http.Request, field string) ([]byte, error) {
	file, _, err := r.FormFile(field)
	if err != nil {
		return nil, fmt.Errorf("multipart field %q is required", field)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", field, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("multipart field %q is empty", field)
	}
	return data, nil
}

func parseVariant(raw string) (domain.Variant, error) {
	if strings.TrimSpace(raw) == "" {
		return domain.Variant{}, errors.New(`multipart field "variant" is required`)
	}

	var variant domain.Variant
	decoder := json.NewDecoder(strings.NewReader(raw))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&variant); err != nil {
		return domain.Variant{}, fmt.Errorf("invalid variant JSON: %w", err)
	}
	if strings.TrimSpace(variant.ID) == "" {
		variant.ID = syncVariantID
	}
	if err := variant.Validate(); err != nil {
		return domain.Variant{}, err
	}
	return variant, nil
}

// transformErrorStatus maps engine failures onto HTTP statuses.
func transformErrorStatus(err error) int {
	switch {
	case errors.Is(err, raster.ErrDecode):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, raster.ErrUnsupportedEncodeFormat),
		errors.Is(err, raster.ErrEmptyRequest),
		errors.Is(err, pipeline.ErrInvalidOperation),
		errors.Is(err, pipeline.ErrInvalidStepAction):
		return http.StatusBadRequest
	case errors.Is(err, raster.ErrInvalidDimensions),
		errors.Is(err, raster.ErrEmptyCropRegion),
		errors.Is(err, raster.ErrInvalidAngle),
		errors.Is(err, raster.ErrInvalidFilterParameter):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
