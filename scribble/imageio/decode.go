// Package imageio decodes user-supplied raster images for the background layer.
package imageio

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"

	// Decoders registered with image.Decode
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/h2non/filetype"
)

var (
	// ErrUnsupportedImage is returned when the input is not a decodable raster image
	ErrUnsupportedImage = errors.New("unsupported image format")
	// ErrImageTooLarge is returned for images wider or taller than MaxSide
	ErrImageTooLarge = errors.New("image too large")
)

// MaxSide is the largest accepted width or height, checked from the header
// before any pixel data is allocated.
const MaxSide = 16384

// sniffLen is how many bytes filetype needs to identify every supported format
const sniffLen = 262

var supported = map[string]bool{
	"png":  true,
	"jpg":  true,
	"gif":  true,
	"bmp":  true,
	"tif":  true,
	"webp": true,
}

// Decode identifies the image type from its magic bytes and decodes it.
// The returned string is the detected file extension.
func Decode(r io.Reader) (image.Image, string, error) {
	br := bufio.NewReaderSize(r, sniffLen)
	head, err := br.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, "", fmt.Errorf("failed to read image header: %w", err)
	}

	kind, err := filetype.Match(head)
	if err != nil {
		return nil, "", fmt.Errorf("failed to detect image type: %w", err)
	}
	if !supported[kind.Extension] {
		return nil, "", fmt.Errorf("%w: %q", ErrUnsupportedImage, kind.MIME.Value)
	}

	var header bytes.Buffer
	cfg, _, err := image.DecodeConfig(io.TeeReader(br, &header))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read %s image header: %w", kind.Extension, err)
	}
	if cfg.Width > MaxSide || cfg.Height > MaxSide {
		return nil, "", fmt.Errorf("%w: %dx%d exceeds %d pixels per side", ErrImageTooLarge, cfg.Width, cfg.Height, MaxSide)
	}

	img, _, err := image.Decode(io.MultiReader(&header, br))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode %s image: %w", kind.Extension, err)
	}

	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, "", fmt.Errorf("%w: empty %s image", ErrUnsupportedImage, kind.Extension)
	}

	return img, kind.Extension, nil
}
