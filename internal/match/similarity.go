package match

import (
	"fmt"

	"github.com/corona10/goimagehash"

	"mediadupes/internal/hash"
	"mediadupes/internal/models"
)

// ChiSquareDivisor maps chi-square distance onto a 0-100 color distance.
// Chi-square between normalized histograms rarely exceeds it.
var ChiSquareDivisor = 2.0

const (
	// colorWeight is the share of the color term; structure gets the rest
	colorWeight = 0.3

	exactStructural = 99.5
)

// Score is the result of comparing two fingerprints
type Score struct {
	Similarity float64       // final score, 0-100
	Structural float64       // unrotated hash similarity
	Color      float64       // histogram similarity, advanced only
	Method     models.Method // which signal produced Similarity
}

// Compare scores two fingerprints produced under the same configuration.
// A configuration mismatch returns a *hash.ConfigMismatchError.
func Compare(a, b *hash.Fingerprint) (Score, error) {
	if err := hash.Compatible(a, b); err != nil {
		return Score{}, err
	}

	structural, err := hashSimilarity(a.Hash, b.Hash)
	if err != nil {
		return Score{}, err
	}

	if a.Config.Variant == hash.VariantBasic {
		method := models.MethodPerceptual
		if structural == 100 {
			method = models.MethodExact
		}
		return Score{Similarity: structural, Structural: structural, Method: method}, nil
	}

	color := ColorSimilarity(a.Histogram, b.Histogram)
	combined := blend(structural, color)
	score := Score{
		Similarity: combined,
		Structural: structural,
		Color:      color,
		Method:     models.MethodPerceptual,
	}

	if len(a.Rotations) > 0 && len(b.Rotations) > 0 {
		best, err := bestOrientation(a, b)
		if err != nil {
			return Score{}, err
		}
		if best > combined {
			score.Similarity = best
			score.Method = models.MethodRotated
		}
	}

	if structural > exactStructural {
		score.Method = models.MethodExact
	}
	return score, nil
}

// blend returns 0.7*structural + 0.3*color, exact when both are equal
func blend(structural, color float64) float64 {
	return structural + colorWeight*(color-structural)
}

// bestOrientation returns the highest hash similarity over every pair of
// orientations of a and b
func bestOrientation(a, b *hash.Fingerprint) (float64, error) {
	best := 0.0
	for _, ha := range a.Orientations() {
		for _, hb := range b.Orientations() {
			s, err := hashSimilarity(ha, hb)
			if err != nil {
				return 0, err
			}
			if s > best {
				best = s
			}
		}
	}
	return best, nil
}

// hashSimilarity converts Hamming distance into a 0-100 similarity. Hashes
// of different kinds cannot be compared.
func hashSimilarity(a, b *goimagehash.ImageHash) (float64, error) {
	if a.GetKind() != b.GetKind() {
		return 0, fmt.Errorf("failed to compute hash distance: kinds %v and %v differ", a.GetKind(), b.GetKind())
	}
	d := hash.HammingDistance(a.GetHash(), b.GetHash())
	return 100 - 100*float64(d)/float64(hash.HashBits), nil
}

// ColorSimilarity converts the chi-square distance between two histograms
// into a 0-100 similarity. Bins empty in both histograms are ignored.
func ColorSimilarity(h1, h2 []float64) float64 {
	n := min(len(h1), len(h2))
	var chi float64
	for i := 0; i < n; i++ {
		sum := h1[i] + h2[i]
		if sum > 0 {
			d := h1[i] - h2[i]
			chi += d * d / sum
		}
	}
	return 100 - min(100, chi/ChiSquareDivisor*100)
}
