// Package hash extracts perceptual fingerprints from raster samples.
//
// Two variants are supported. The basic variant is an 8x8 average hash.
// The advanced variant is a 64-bit DCT hash taken from the low frequencies
// of a 32x32 luminance matrix, plus an RGB histogram and, optionally, the
// hashes of the matrix rotated by 90, 180 and 270 degrees.
package hash

import (
	"errors"
	"fmt"
	"math/bits"
	"strings"

	"github.com/corona10/goimagehash"

	"mediadupes/internal/decode"
)

// Variant selects the fingerprinting algorithm
type Variant string

const (
	VariantBasic    Variant = "basic"
	VariantAdvanced Variant = "advanced"
)

const (
	// BasicSize is the sample side used by the average hash
	BasicSize = 8
	// AdvancedSize is the sample side fed to the DCT
	AdvancedSize = 32
	// LowFreqSize is the side of the low-frequency DCT block
	LowFreqSize = 8
	// HashBits is the length of every structural hash
	HashBits = 64
	// HistogramBins is the number of bins per color channel
	HistogramBins = 16
)

// ParseVariant parses a variant name
func ParseVariant(s string) (Variant, error) {
	switch Variant(strings.ToLower(strings.TrimSpace(s))) {
	case VariantBasic:
		return VariantBasic, nil
	case VariantAdvanced, "":
		return VariantAdvanced, nil
	default:
		return "", fmt.Errorf("unknown variant %q (want basic or advanced)", s)
	}
}

// Config is the configuration a fingerprint was generated with.
// Fingerprints are only comparable when their configs are equal.
type Config struct {
	Variant   Variant `json:"variant"`
	Size      int     `json:"size"`
	Rotations bool    `json:"rotations"`
}

// NewConfig returns the config for a variant. Rotations only apply to the
// advanced variant.
func NewConfig(variant Variant, rotations bool) Config {
	if variant == VariantBasic {
		return Config{Variant: VariantBasic, Size: BasicSize}
	}
	return Config{Variant: VariantAdvanced, Size: AdvancedSize, Rotations: rotations}
}

func (c Config) String() string {
	return fmt.Sprintf("%s/%d/rotations=%t", c.Variant, c.Size, c.Rotations)
}

// ErrConfigMismatch is wrapped by ConfigMismatchError
var ErrConfigMismatch = errors.New("fingerprint configurations differ")

// ConfigMismatchError reports an attempt to compare fingerprints produced
// under different configurations
type ConfigMismatchError struct {
	A, B Config
}

func (e *ConfigMismatchError) Error() string {
	return fmt.Sprintf("cannot compare fingerprints: %s vs %s", e.A, e.B)
}

func (e *ConfigMismatchError) Unwrap() error {
	return ErrConfigMismatch
}

// Fingerprint is the perceptual signature of one image
type Fingerprint struct {
	Config    Config
	Hash      *goimagehash.ImageHash
	Histogram []float64                // advanced only, 3*HistogramBins values
	Rotations []*goimagehash.ImageHash // advanced with rotations: 90, 180, 270 clockwise
}

// Compatible returns a ConfigMismatchError when a and b cannot be compared
func Compatible(a, b *Fingerprint) error {
	if a.Config != b.Config {
		return &ConfigMismatchError{A: a.Config, B: b.Config}
	}
	return nil
}

// Orientations returns the structural hash followed by its rotations
func (f *Fingerprint) Orientations() []*goimagehash.ImageHash {
	out := make([]*goimagehash.ImageHash, 0, 1+len(f.Rotations))
	out = append(out, f.Hash)
	return append(out, f.Rotations...)
}

// Extract computes the fingerprint of a sample
func Extract(s *decode.Sample, cfg Config) (*Fingerprint, error) {
	if s == nil || s.Pixels == nil {
		return nil, errors.New("nil sample")
	}
	b := s.Pixels.Bounds()
	if s.Size != cfg.Size || b.Dx() != cfg.Size || b.Dy() != cfg.Size {
		return nil, fmt.Errorf("sample is %dx%d, config %s needs %dx%d",
			b.Dx(), b.Dy(), cfg, cfg.Size, cfg.Size)
	}

	lum := luminance(s)

	switch cfg.Variant {
	case VariantBasic:
		return &Fingerprint{
			Config: cfg,
			Hash:   goimagehash.NewImageHash(averageHash(lum), goimagehash.AHash),
		}, nil

	case VariantAdvanced:
		fp := &Fingerprint{
			Config:    cfg,
			Hash:      goimagehash.NewImageHash(dctHash(lum), goimagehash.PHash),
			Histogram: colorHistogram(s),
		}
		if cfg.Rotations {
			m := lum
			for i := 0; i < 3; i++ {
				m = rotateClockwise(m)
				fp.Rotations = append(fp.Rotations, goimagehash.NewImageHash(dctHash(m), goimagehash.PHash))
			}
		}
		return fp, nil

	default:
		return nil, fmt.Errorf("unknown variant %q", cfg.Variant)
	}
}

// luminance builds the row-major luminance matrix of a sample
func luminance(s *decode.Sample) [][]float64 {
	m := make([][]float64, s.Size)
	for y := range m {
		m[y] = make([]float64, s.Size)
		for x := range m[y] {
			r, g, b := s.RGB(x, y)
			// ITU-R BT.601 luma
			m[y][x] = 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
		}
	}
	return m
}

// averageHash sets one bit per pixel whose luminance exceeds the mean
func averageHash(lum [][]float64) uint64 {
	var sum float64
	n := 0
	for _, row := range lum {
		for _, v := range row {
			sum += v
			n++
		}
	}
	mean := sum / float64(n)

	var h uint64
	i := 0
	for _, row := range lum {
		for _, v := range row {
			if v > mean {
				h |= 1 << (HashBits - 1 - i)
			}
			i++
		}
	}
	return h
}

// colorHistogram returns 16 normalized bins for each of R, G and B
func colorHistogram(s *decode.Sample) []float64 {
	hist := make([]float64, 3*HistogramBins)
	for y := 0; y < s.Size; y++ {
		for x := 0; x < s.Size; x++ {
			r, g, b := s.RGB(x, y)
			hist[int(r)/16]++
			hist[HistogramBins+int(g)/16]++
			hist[2*HistogramBins+int(b)/16]++
		}
	}
	total := float64(s.Size * s.Size)
	for i := range hist {
		hist[i] /= total
	}
	return hist
}

// HammingDistance calculates the Hamming distance between two hashes
func HammingDistance(hash1, hash2 uint64) int {
	return bits.OnesCount64(hash1 ^ hash2)
}
