// Package kernels provides the vector kernels used by the addressing pipeline.
//
// Every kernel works on a single []float64 row and either rewrites it in place
// or writes into a caller-provided destination. Batch handling lives one level
// up: callers apply the same kernel to each row of a batch, so no kernel has
// data-dependent control flow across batch elements.
//
// Available operations:
//   - Activations: sigmoid, softplus, softmax, gamma squash
//   - Similarity: cosine similarity with an epsilon-guarded denominator
//   - Location: circular convolution of an address with a shift kernel
//   - Sharpening: max-scaled elementwise power
//
// Activations are registered in the Catalog array by opcode so a decoder can
// describe each parameter field by the opcode of its range constraint.
package kernels

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// KernelFn rewrites a row in place.
type KernelFn func(data []float64)

// Kernel operation codes
const (
	OpNoop     = 0x00
	OpSigmoid  = 0x01
	OpSoftplus = 0x02
	OpSoftmax  = 0x03
	OpGamma    = 0x04
)

// Catalog maps opcodes to kernel implementations.
var Catalog = [256]KernelFn{
	OpNoop:     noop,
	OpSigmoid:  Sigmoid,
	OpSoftplus: Softplus,
	OpSoftmax:  Softmax,
	OpGamma:    GammaSquash,
}

// SimilarityEpsilon keeps the cosine denominator away from zero.
const SimilarityEpsilon = 1e-8

// Gamma bounds for GammaSquash.
const (
	gammaMin = 1.0
	gammaMax = 21.0
)

func noop(data []float64) {}

// Sigmoid applies 1 / (1 + e^-x).
func Sigmoid(data []float64) {
	for i, x := range data {
		if x >= 0 {
			data[i] = 1 / (1 + math.Exp(-x))
		} else {
			e := math.Exp(x)
			data[i] = e / (1 + e)
		}
	}
}

// Softplus applies log(1 + e^x) without overflowing for large x.
func Softplus(data []float64) {
	for i, x := range data {
		data[i] = math.Max(x, 0) + math.Log1p(math.Exp(-math.Abs(x)))
	}
}

// GammaSquash maps x to min(softplus(x)+1, 21).
func GammaSquash(data []float64) {
	Softplus(data)
	for i, x := range data {
		data[i] = math.Min(x+gammaMin, gammaMax)
	}
}

// Softmax implements a numerically stable softmax.
func Softmax(data []float64) {
	if len(data) == 0 {
		return
	}
	maxVal := floats.Max(data)
	var sum float64
	for i, x := range data {
		data[i] = math.Exp(x - maxVal)
		sum += data[i]
	}
	floats.Scale(1/sum, data)
}

// CosineSimilarity returns dot(a,b) / (|a|·|b| + SimilarityEpsilon).
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		panic("vector length mismatch")
	}
	return floats.Dot(a, b) / (floats.Norm(a, 2)*floats.Norm(b, 2) + SimilarityEpsilon)
}

// AlignShift writes the length-N kernel used by CircularConvolve into dst:
// dst[d] holds the weight for a forward move of d slots (mod N). The shift
// vector's center index maps to d = 0 and positions beyond len(shift) are
// zero padded.
func AlignShift(dst, shift []float64) {
	n := len(dst)
	if len(shift) > n {
		panic("shift longer than address")
	}
	center := len(shift) / 2
	for i := range dst {
		dst[i] = 0
	}
	for s, v := range shift {
		d := ((s-center)%n + n) % n
		dst[d] += v
	}
}

// CircularConvolve writes dst[j] = Σ_k w[k]·aligned[(j-k) mod N].
// aligned must come from AlignShift. dst and w must not alias.
func CircularConvolve(dst, w, aligned []float64) {
	n := len(w)
	if len(dst) != n || len(aligned) != n {
		panic("vector length mismatch")
	}
	for j := 0; j < n; j++ {
		var sum float64
		for k := 0; k < n; k++ {
			d := j - k
			if d < 0 {
				d += n
			}
			sum += w[k] * aligned[d]
		}
		dst[j] = sum
	}
}

// Sharpen raises every entry to gamma after dividing by the row maximum, and
// returns the resulting sum. The largest entry becomes exactly 1; the scale
// cancels after Normalize. A row without a positive finite maximum returns 0.
func Sharpen(data []float64, gamma float64) float64 {
	if len(data) == 0 {
		return 0
	}
	maxVal := floats.Max(data)
	if !(maxVal > 0) || math.IsInf(maxVal, 0) {
		return 0
	}
	var sum float64
	for i, x := range data {
		data[i] = math.Pow(x/maxVal, gamma)
		sum += data[i]
	}
	return sum
}

// Normalize divides every entry by sum.
func Normalize(data []float64, sum float64) {
	floats.Scale(1/sum, data)
}

// Finite reports whether every entry is a finite number.
func Finite(data []float64) bool {
	for _, x := range data {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// GetKernel returns the kernel function for the given opcode.
func GetKernel(opcode byte) KernelFn {
	return Catalog[opcode]
}
