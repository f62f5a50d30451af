// Package imaging decodes transport-encoded probe and reference photos into
// the normalized grayscale rasters the feature extractor operates on.
package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

// DecodeError signals an empty, malformed, or zero-sized image payload.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode image: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("decode image: %s", e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Codec converts image payloads into normalized single-channel rasters.
type Codec struct {
	maxEdge int
}

// NewCodec creates a codec that downscales rasters so the longest edge does
// not exceed maxEdge pixels. Consistent sizing keeps extractor output stable
// across differently sized uploads of the same photo.
func NewCodec(maxEdge int) *Codec {
	if maxEdge <= 0 {
		maxEdge = 640
	}
	return &Codec{maxEdge: maxEdge}
}

// Decode turns raw image bytes into an 8-bit grayscale raster.
// Supported formats: JPEG, PNG, GIF, BMP.
func (c *Codec) Decode(payload []byte) (*image.Gray, error) {
	if len(payload) == 0 {
		return nil, &DecodeError{Reason: "empty payload"}
	}

	img, _, err := image.Decode(bytes.NewReader(payload))
	if err != nil {
		return nil, &DecodeError{Reason: "malformed image", Err: err}
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width == 0 || height == 0 {
		return nil, &DecodeError{Reason: "zero-sized image"}
	}

	// Calculate target dimensions, bounded by maxEdge.
	newWidth, newHeight := width, height
	if width > c.maxEdge || height > c.maxEdge {
		if width > height {
			newWidth = c.maxEdge
			newHeight = int(float64(height) * float64(c.maxEdge) / float64(width))
		} else {
			newHeight = c.maxEdge
			newWidth = int(float64(width) * float64(c.maxEdge) / float64(height))
		}
		if newWidth < 1 {
			newWidth = 1
		}
		if newHeight < 1 {
			newHeight = 1
		}
	}

	// Scaling into an image.Gray destination converts through the Gray color
	// model, which applies the BT.601 luma formula.
	gray := image.NewGray(image.Rect(0, 0, newWidth, newHeight))
	draw.BiLinear.Scale(gray, gray.Bounds(), img, bounds, draw.Src, nil)

	return gray, nil
}

// DecodeBase64Payload unwraps an optional data-URL prefix and decodes the
// base64 body. Kiosks submit probes as data URLs captured from a canvas.
func DecodeBase64Payload(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, &DecodeError{Reason: "empty payload"}
	}
	if idx := strings.Index(s, ","); idx >= 0 && strings.HasPrefix(s, "data:") {
		s = s[idx+1:]
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, &DecodeError{Reason: "invalid base64 payload", Err: err}
	}
	return raw, nil
}
