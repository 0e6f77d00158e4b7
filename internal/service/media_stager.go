package service

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/webp" // register the webp decoder for image.DecodeConfig

	"github.com/stemsi/exstem-assessment/internal/model"
)

// Sentinel errors for media staging.
var (
	ErrEmptyMedia          = errors.New("media is empty")
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrFileTooLarge        = errors.New("file too large")
)

// Allowed image MIME types and the format a down-scaled copy is re-encoded to.
var allowedMIMETypes = map[string]imaging.Format{
	"image/jpeg": imaging.JPEG,
	"image/png":  imaging.PNG,
	"image/gif":  imaging.PNG,
	"image/webp": imaging.JPEG,
}

var formatMIME = map[imaging.Format]string{
	imaging.JPEG: "image/jpeg",
	imaging.PNG:  "image/png",
}

// StagedMedia is an image ready for upload.
type StagedMedia struct {
	Data        []byte
	ContentType string
	Width       int
	Height      int
	Resized     bool
}

// MediaStager validates captured images and shrinks oversized ones.
type MediaStager struct {
	maxBytes     int64
	maxDimension int
}

// NewMediaStager creates a MediaStager. Zero limits disable the check.
func NewMediaStager(maxBytes int64, maxDimension int) *MediaStager {
	return &MediaStager{maxBytes: maxBytes, maxDimension: maxDimension}
}

// Check reports whether data would be accepted by Stage without decoding
// the full image. It returns the sniffed content type.
func (s *MediaStager) Check(data []byte) (string, error) {
	contentType, _, err := s.sniff(data)
	return contentType, err
}

func (s *MediaStager) sniff(data []byte) (string, imaging.Format, error) {
	if len(data) == 0 {
		return "", 0, ErrEmptyMedia
	}
	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		return "", 0, fmt.Errorf("%w: %d bytes (max: %d)", ErrFileTooLarge, len(data), s.maxBytes)
	}

	contentType := mimetype.Detect(data).String()
	format, ok := allowedMIMETypes[contentType]
	if !ok {
		return contentType, 0, fmt.Errorf("%w: %s (allowed: %s)",
			ErrUnsupportedFileType, contentType, strings.Join(allowedTypes(), ", "))
	}
	return contentType, format, nil
}

// Stage sniffs the real content type, enforces the size limit and fits the
// image inside maxDimension×maxDimension.
func (s *MediaStager) Stage(h *model.MediaHandle) (*StagedMedia, error) {
	if h == nil {
		return nil, ErrEmptyMedia
	}
	contentType, format, err := s.sniff(h.Data)
	if err != nil {
		return nil, err
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(h.Data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrUnsupportedFileType, contentType, err)
	}

	staged := &StagedMedia{
		Data:        h.Data,
		ContentType: contentType,
		Width:       cfg.Width,
		Height:      cfg.Height,
	}
	if s.maxDimension <= 0 || (cfg.Width <= s.maxDimension && cfg.Height <= s.maxDimension) {
		return staged, nil
	}

	img, err := imaging.Decode(bytes.NewReader(h.Data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	fitted := imaging.Fit(img, s.maxDimension, s.maxDimension, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, fitted, format, imaging.JPEGQuality(85)); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}

	bounds := fitted.Bounds()
	staged.Data = buf.Bytes()
	staged.ContentType = formatMIME[format]
	staged.Width = bounds.Dx()
	staged.Height = bounds.Dy()
	staged.Resized = true
	return staged, nil
}

func allowedTypes() []string {
	types := make([]string, 0, len(allowedMIMETypes))
	for t := range allowedMIMETypes {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
