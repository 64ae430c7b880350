package vectormath

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDense(t *testing.T) {
	tests := []struct {
		name  string
		input [][]float32
		want  [][]float32
	}{
		{
			name:  "known norm of 10",
			input: [][]float32{{2.0, 4.0, 4.0, 8.0}},
			want:  [][]float32{{0.2, 0.4, 0.4, 0.8}},
		},
		{
			name:  "zero vector stays zero",
			input: [][]float32{{0, 0, 0}},
			want:  [][]float32{{0, 0, 0}},
		},
		{
			name: "batch of mixed vectors",
			input: [][]float32{
				{3.0, 4.0},
				{0, 0},
			},
			want: [][]float32{
				{0.6, 0.8},
				{0, 0},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeDense(tt.input)
			require.Len(t, got, len(tt.want))
			for i := range tt.want {
				require.Len(t, got[i], len(tt.want[i]))
				for j := range tt.want[i] {
					assert.InDelta(t, tt.want[i][j], got[i][j], 1e-6)
				}
			}
		})
	}
}

func TestNormalizeDense_Idempotent(t *testing.T) {
	v := NormalizeDenseVector([]float32{1.0, 2.0, 2.0})
	again := NormalizeDenseVector(v)

	for i := range v {
		assert.InDelta(t, v[i], again[i], 1e-6)
	}
	assert.InDelta(t, 1.0, l2norm(again), 1e-6)
}

func TestNormalizeDense_DoesNotMutateInput(t *testing.T) {
	input := []float32{2.0, 4.0, 4.0, 8.0}
	_ = NormalizeDenseVector(input)
	assert.Equal(t, []float32{2.0, 4.0, 4.0, 8.0}, input)
}

func TestNormalizeSparse(t *testing.T) {
	input := []SparseVector{
		{
			Indices: []uint32{744372458, 2165993515, 3261080123, 3508911095},
			Values:  []float32{1.0, 5.0, 5.0, 7.0},
		},
	}

	got := NormalizeSparse(input)

	require.Len(t, got, 1)
	assert.Equal(t, input[0].Indices, got[0].Indices)
	want := []float32{0.1, 0.5, 0.5, 0.7}
	for i := range want {
		assert.InDelta(t, want[i], got[0].Values[i], 1e-6)
	}
}

func TestNormalizeSparse_ZeroValues(t *testing.T) {
	input := SparseVector{
		Indices: []uint32{1, 7, 42},
		Values:  []float32{0, 0, 0},
	}

	got := NormalizeSparseVector(input)

	assert.Equal(t, input.Indices, got.Indices)
	assert.Equal(t, input.Values, got.Values)
	for _, v := range got.Values {
		assert.False(t, math.IsNaN(float64(v)))
	}
}

func TestNormalizeSparse_UnitNorm(t *testing.T) {
	got := NormalizeSparseVector(SparseVector{
		Indices: []uint32{3, 9},
		Values:  []float32{12.5, 3.25},
	})
	assert.InDelta(t, 1.0, l2norm(got.Values), 1e-6)
}
