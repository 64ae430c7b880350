// Package vectormath provides unit-length normalization for embedding vectors.
//
// The index is configured with a dot-product metric, so every vector written
// to or queried against it must be scaled to unit Euclidean (L2) norm first.
// Both the dense and the sparse embedding pipelines normalize through this
// package before handing vectors to the store.
package vectormath

import "math"

// epsilon substitutes for a zero denominator so zero vectors normalize to
// themselves instead of NaN.
const epsilon = 1e-10

// SparseVector is a lexical embedding: parallel index/value lists.
// Indices identify vocabulary dimensions and are never rescaled.
type SparseVector struct {
	Indices []uint32
	Values  []float32
}

// NormalizeDense rescales each vector in the batch to unit L2 norm.
// Input vectors are not mutated. Zero vectors are returned unchanged.
func NormalizeDense(vectors [][]float32) [][]float32 {
	out := make([][]float32, len(vectors))
	for i, v := range vectors {
		out[i] = normalizeDenseOne(v)
	}
	return out
}

// NormalizeDenseVector normalizes a single dense vector as a one-element batch.
func NormalizeDenseVector(v []float32) []float32 {
	return normalizeDenseOne(v)
}

func normalizeDenseOne(v []float32) []float32 {
	norm := l2norm(v)
	if norm == 0 {
		norm = epsilon
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// NormalizeSparse rescales the values of each sparse vector in the batch to
// unit L2 norm, leaving indices untouched. Zero-norm vectors keep their
// values unchanged.
func NormalizeSparse(vectors []SparseVector) []SparseVector {
	out := make([]SparseVector, len(vectors))
	for i, v := range vectors {
		out[i] = normalizeSparseOne(v)
	}
	return out
}

// NormalizeSparseVector normalizes a single sparse vector as a one-element batch.
func NormalizeSparseVector(v SparseVector) SparseVector {
	return normalizeSparseOne(v)
}

func normalizeSparseOne(v SparseVector) SparseVector {
	values := make([]float32, len(v.Values))
	norm := l2norm(v.Values)
	if norm == 0 {
		copy(values, v.Values)
	} else {
		for i, x := range v.Values {
			values[i] = float32(float64(x) / norm)
		}
	}
	indices := make([]uint32, len(v.Indices))
	copy(indices, v.Indices)
	return SparseVector{Indices: indices, Values: values}
}

func l2norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
