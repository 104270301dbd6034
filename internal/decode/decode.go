// Package decode turns image files into small square raster samples
// suitable for fingerprinting.
package decode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrUnsupportedFormat is returned for files no registered decoder understands
var ErrUnsupportedFormat = errors.New("unsupported image format")

// Error is returned when a single image cannot be turned into a sample
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("failed to decode %s: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Sample is a square raster of side Size. Pixels are not premultiplied, so
// RGB of a translucent pixel is its stored color.
type Sample struct {
	Size   int
	Pixels *image.NRGBA
}

// RGB returns the 8-bit color channels of the pixel at (x, y)
func (s *Sample) RGB(x, y int) (r, g, b uint8) {
	i := s.Pixels.PixOffset(x, y)
	p := s.Pixels.Pix[i : i+3 : i+3]
	return p[0], p[1], p[2]
}

// Decoder loads an image and rasterizes it to a size x size sample
type Decoder interface {
	Decode(ctx context.Context, path string, size int) (*Sample, error)
}

// FileDecoder reads images directly from the local filesystem
type FileDecoder struct{}

// NewFileDecoder creates a new FileDecoder
func NewFileDecoder() *FileDecoder {
	return &FileDecoder{}
}

// Decode reads path, applies its EXIF orientation and resamples it to a
// size x size square. Aspect ratio is not preserved.
func (d *FileDecoder) Decode(ctx context.Context, path string, size int) (*Sample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if size <= 0 {
		return nil, &Error{Path: path, Err: fmt.Errorf("invalid sample size %d", size)}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Path: path, Err: fmt.Errorf("failed to read file: %w", err)}
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, &Error{Path: path, Err: ErrUnsupportedFormat}
		}
		return nil, &Error{Path: path, Err: fmt.Errorf("failed to decode image: %w", err)}
	}
	if img.Bounds().Empty() {
		return nil, &Error{Path: path, Err: errors.New("image has no pixels")}
	}

	sample := Resample(img, size)
	if format == "jpeg" {
		sample.Pixels = Orient(sample.Pixels, readOrientation(data))
	}
	return sample, nil
}

// Resample scales img to a size x size square with Catmull-Rom
// interpolation. Images already at the target size are copied as is.
func Resample(img image.Image, size int) *Sample {
	dst := image.NewNRGBA(image.Rect(0, 0, size, size))
	src := img.Bounds()
	if src.Dx() == size && src.Dy() == size {
		draw.Draw(dst, dst.Bounds(), img, src.Min, draw.Src)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, src, draw.Src, nil)
	}
	return &Sample{Size: size, Pixels: dst}
}

// readOrientation returns the EXIF orientation tag, or 1 when absent
func readOrientation(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	v, err := tag.Int(0)
	if err != nil || v < 1 || v > 8 {
		return 1
	}
	return v
}

// IsSupportedImage checks if a file is a supported image format
func IsSupportedImage(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp", ".tiff", ".tif":
		return true
	default:
		return false
	}
}
