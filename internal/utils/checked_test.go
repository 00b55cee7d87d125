package utils

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckedAdd(t *testing.T) {
	sum, err := CheckedAdd(2, 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), sum)

	_, err = CheckedAdd(math.MaxUint64, 1)
	assert.ErrorIs(t, err, ErrMathOverflow)

	assert.Equal(t, uint64(5), SaturatingAdd(2, 3))
	assert.Equal(t, uint64(math.MaxUint64), SaturatingAdd(math.MaxUint64-1, 7))
}

func TestCheckedSub(t *testing.T) {
	diff, err := CheckedSub(10, 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(6), diff)

	_, err = CheckedSub(4, 10)
	assert.ErrorIs(t, err, ErrMathOverflow)
	assert.Equal(t, uint64(0), SaturatingSub(4, 10))
}

func TestCheckedMul(t *testing.T) {
	product, err := CheckedMul(1<<32, 1<<31)
	require.NoError(t, err)
	assert.Equal(t, uint64(1<<63), product)

	_, err = CheckedMul(1<<32, 1<<32)
	assert.ErrorIs(t, err, ErrMathOverflow)
}

func TestMulDiv(t *testing.T) {
	tests := []struct {
		name    string
		a, b, d uint64
		want    uint64
		wantErr error
	}{
		{name: "simple", a: 1000, b: 4500, d: 10000, want: 450},
		{name: "floors", a: 7, b: 1, d: 2, want: 3},
		{name: "wide intermediate", a: math.MaxUint64, b: 10000, d: 10000, want: math.MaxUint64},
		{name: "result overflows", a: math.MaxUint64, b: 2, d: 1, wantErr: ErrMathOverflow},
		{name: "zero denominator", a: 1, b: 1, d: 0, wantErr: ErrDivisionByZero},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MulDiv(tt.a, tt.b, tt.d)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSumUint64(t *testing.T) {
	total, err := SumUint64(1, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(6), total)

	_, err = SumUint64(math.MaxUint64, 1)
	assert.ErrorIs(t, err, ErrMathOverflow)
}

func TestLog2Fixed(t *testing.T) {
	one := uint64(1) << Log2FracBits

	t.Run("powers of two are exact", func(t *testing.T) {
		for exp := uint64(0); exp < 64; exp++ {
			got, err := Log2Fixed(uint64(1) << exp)
			require.NoError(t, err)
			assert.Equal(t, exp*one, got)
		}
	})

	t.Run("fractional values", func(t *testing.T) {
		got, err := Log2Fixed(3)
		require.NoError(t, err)
		// log2(3) = 1.5849625007
		assert.InDelta(t, 1.5849625007, float64(got)/float64(one), 1e-8)

		got, err = Log2Fixed(100_000_000)
		require.NoError(t, err)
		assert.InDelta(t, 26.5754247591, float64(got)/float64(one), 1e-8)
	})

	t.Run("monotonic", func(t *testing.T) {
		prev, err := Log2Fixed(1)
		require.NoError(t, err)
		for x := uint64(2); x < 5000; x++ {
			got, err := Log2Fixed(x)
			require.NoError(t, err)
			assert.Greater(t, got, prev)
			prev = got
		}
	})

	t.Run("zero", func(t *testing.T) {
		_, err := Log2Fixed(0)
		assert.ErrorIs(t, err, ErrMathOverflow)
	})
}
