package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutoSelectsClopperPearsonForSmallN(t *testing.T) {
	iv, err := ConfidenceInterval(1, 15, MethodAuto, 0.95)
	require.NoError(t, err)

	assert.Equal(t, MethodClopperPearson, iv.MethodUsed)
	assert.InDelta(t, 0.0017, iv.Lower, 0.001)
	assert.InDelta(t, 0.3195, iv.Upper, 0.002)
	assert.InDelta(t, 1.0/15.0, iv.PointEstimate, 1e-9)
	assert.NotEmpty(t, iv.Warning)
}

func TestAutoSelectsWilsonForLargeN(t *testing.T) {
	iv, err := ConfidenceInterval(10, 100, MethodAuto, 0.95)
	require.NoError(t, err)

	assert.Equal(t, MethodWilson, iv.MethodUsed)
	assert.InDelta(t, 0.055, iv.Lower, 0.002)
	assert.InDelta(t, 0.175, iv.Upper, 0.002)
	assert.Empty(t, iv.Warning)
}

func TestAutoSelectsClopperPearsonAtBoundaries(t *testing.T) {
	iv, err := ConfidenceInterval(0, 100, MethodAuto, 0.95)
	require.NoError(t, err)
	assert.Equal(t, MethodClopperPearson, iv.MethodUsed)
	assert.Zero(t, iv.Lower)

	iv, err = ConfidenceInterval(100, 100, MethodAuto, 0.95)
	require.NoError(t, err)
	assert.Equal(t, MethodClopperPearson, iv.MethodUsed)
	assert.Equal(t, 1.0, iv.Upper)
}

func TestIntervalOrderingInvariant(t *testing.T) {
	cases := []struct{ x, n int }{
		{0, 1}, {1, 1}, {1, 2}, {5, 10}, {1, 15}, {19, 20}, {50, 200}, {7, 33},
	}
	for _, m := range []Method{MethodWilson, MethodClopperPearson, MethodAuto} {
		for _, c := range cases {
			iv, err := ConfidenceInterval(c.x, c.n, m, 0.95)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, iv.Lower, 0.0)
			assert.LessOrEqual(t, iv.Lower, iv.PointEstimate, "method=%s x=%d n=%d", m, c.x, c.n)
			assert.GreaterOrEqual(t, iv.Upper, iv.PointEstimate, "method=%s x=%d n=%d", m, c.x, c.n)
			assert.LessOrEqual(t, iv.Upper, 1.0)
			assert.InDelta(t, float64(c.x)/float64(c.n), iv.PointEstimate, 1e-12)
		}
	}
}

func TestClopperPearsonContainsWilson(t *testing.T) {
	cases := []struct{ x, n int }{
		{1, 30}, {5, 50}, {10, 100}, {25, 40}, {3, 25}, {60, 80},
	}
	for _, c := range cases {
		cp, err := ConfidenceInterval(c.x, c.n, MethodClopperPearson, 0.95)
		require.NoError(t, err)
		w, err := ConfidenceInterval(c.x, c.n, MethodWilson, 0.95)
		require.NoError(t, err)

		assert.LessOrEqual(t, cp.Lower, w.Lower+1e-9, "x=%d n=%d", c.x, c.n)
		assert.GreaterOrEqual(t, cp.Upper, w.Upper-1e-9, "x=%d n=%d", c.x, c.n)
	}
}

func TestInvalidInputs(t *testing.T) {
	_, err := ConfidenceInterval(1, 0, MethodAuto, 0.95)
	assert.Error(t, err)
	_, err = ConfidenceInterval(-1, 10, MethodAuto, 0.95)
	assert.Error(t, err)
	_, err = ConfidenceInterval(11, 10, MethodAuto, 0.95)
	assert.Error(t, err)
	_, err = ConfidenceInterval(5, 10, MethodAuto, 1.5)
	assert.Error(t, err)
	_, err = ConfidenceInterval(5, 100, Method("bayes"), 0.95)
	assert.ErrorContains(t, err, "valid methods")
}

func TestNormalQuantileKnownValues(t *testing.T) {
	assert.InDelta(t, 1.959964, normalQuantile(0.975), 1e-5)
	assert.InDelta(t, 1.644854, normalQuantile(0.95), 1e-5)
	assert.InDelta(t, 0.0, normalQuantile(0.5), 1e-9)
	assert.InDelta(t, -2.575829, normalQuantile(0.005), 1e-5)
}

func TestRegularizedIncompleteBetaKnownValues(t *testing.T) {
	// I_x(1,1) is the identity.
	assert.InDelta(t, 0.3, regularizedIncompleteBeta(0.3, 1, 1), 1e-10)
	// I_x(2,2) = 3x^2 - 2x^3.
	x := 0.4
	assert.InDelta(t, 3*x*x-2*x*x*x, regularizedIncompleteBeta(x, 2, 2), 1e-10)
	// Symmetry: I_x(a,b) = 1 - I_{1-x}(b,a).
	assert.InDelta(t, 1-regularizedIncompleteBeta(0.7, 5, 3), regularizedIncompleteBeta(0.3, 3, 5), 1e-10)
}

func TestBetaQuantileRoundTrip(t *testing.T) {
	for _, p := range []float64{0.025, 0.5, 0.975} {
		q := betaQuantile(p, 3, 7)
		assert.False(t, math.IsNaN(q))
		assert.InDelta(t, p, regularizedIncompleteBeta(q, 3, 7), 1e-8)
	}
}
