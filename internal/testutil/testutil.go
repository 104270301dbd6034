// Package testutil builds synthetic images for tests.
package testutil

import (
	"image"
	"image/color"
	"image/png"
	"math/rand/v2"
	"os"
	"testing"
)

// Solid returns a w x h image filled with c
func Solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

// Pattern returns a size x size image made of random 4x4 colored blocks.
// The same seed always yields the same image.
func Pattern(size int, seed uint64) *image.RGBA {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	const block = 4
	for by := 0; by < size; by += block {
		for bx := 0; bx < size; bx += block {
			c := color.RGBA{uint8(rng.IntN(256)), uint8(rng.IntN(256)), uint8(rng.IntN(256)), 255}
			for y := by; y < by+block && y < size; y++ {
				for x := bx; x < bx+block && x < size; x++ {
					img.SetRGBA(x, y, c)
				}
			}
		}
	}
	return img
}

// RotateClockwise returns img rotated by 90 degrees clockwise
func RotateClockwise(img *image.RGBA) *image.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, h, w))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dst.SetRGBA(h-1-y, x, img.RGBAAt(b.Min.X+x, b.Min.Y+y))
		}
	}
	return dst
}

// WritePNG encodes img to path
func WritePNG(t testing.TB, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("failed to encode %s: %v", path, err)
	}
}
