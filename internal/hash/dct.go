package hash

import (
	"math"
	"sort"
)

// dctHash hashes the low-frequency DCT block of a luminance matrix:
// one bit per coefficient above the block median, block row-major.
func dctHash(lum [][]float64) uint64 {
	coeffs := lowFrequencyDCT(lum, LowFreqSize)
	med := median(coeffs)

	var h uint64
	for i, c := range coeffs {
		if c > med {
			h |= 1 << (HashBits - 1 - i)
		}
	}
	return h
}

// lowFrequencyDCT returns the top-left keep x keep coefficients of the
// orthonormal 2-D DCT-II of an N x N matrix, row-major:
//
//	F(u,v) = 2/N c(u) c(v) sum_x sum_y f(x,y) cos((2x+1)u pi/2N) cos((2y+1)v pi/2N)
//
// with c(0) = 1/sqrt(2) and c(k) = 1 otherwise. Coefficients beyond keep
// are never computed.
func lowFrequencyDCT(f [][]float64, keep int) []float64 {
	n := len(f)
	if keep > n {
		keep = n
	}

	cos := cosineTable(n, keep)

	// Rows first: tmp[x][v] = sum_y f[x][y] cos(v, y)
	tmp := make([][]float64, n)
	for x := 0; x < n; x++ {
		tmp[x] = make([]float64, keep)
		for v := 0; v < keep; v++ {
			var s float64
			for y := 0; y < n; y++ {
				s += f[x][y] * cos[v][y]
			}
			tmp[x][v] = s
		}
	}

	scale := 2 / float64(n)
	out := make([]float64, 0, keep*keep)
	for u := 0; u < keep; u++ {
		for v := 0; v < keep; v++ {
			var s float64
			for x := 0; x < n; x++ {
				s += cos[u][x] * tmp[x][v]
			}
			out = append(out, scale*alpha(u)*alpha(v)*s)
		}
	}
	return out
}

// cosineTable returns cos((2i+1) k pi / 2n) for k < keep, i < n
func cosineTable(n, keep int) [][]float64 {
	t := make([][]float64, keep)
	for k := range t {
		t[k] = make([]float64, n)
		for i := range t[k] {
			t[k][i] = math.Cos(float64(2*i+1) * float64(k) * math.Pi / float64(2*n))
		}
	}
	return t
}

func alpha(k int) float64 {
	if k == 0 {
		return 1 / math.Sqrt2
	}
	return 1
}

// median of values; the mean of the two middle values for even counts
func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// rotateClockwise rotates a square matrix by 90 degrees clockwise
func rotateClockwise(m [][]float64) [][]float64 {
	n := len(m)
	r := make([][]float64, n)
	for i := range r {
		r[i] = make([]float64, n)
		for j := range r[i] {
			r[i][j] = m[n-1-j][i]
		}
	}
	return r
}
