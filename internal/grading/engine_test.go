package grading

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionStrategy(t *testing.T) {
	g := NewDefaultGrader()
	q := Q{Type: "multiple_choice", Points: 5, Correct: []string{"A"}}

	cases := []struct {
		name     string
		response interface{}
		want     float64
	}{
		{"correct", "A", 5},
		{"wrong", "B", 0},
		{"blank", "", 0},
		{"nil", nil, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := g.Grade(context.Background(), q, tc.response)
			require.NoError(t, err)
			assert.Equal(t, tc.want, res.AutoPoints)
			assert.Equal(t, 5.0, res.MaxPoints)
			assert.False(t, res.NeedsManual)
		})
	}
}

func TestOptionStrategyPointer(t *testing.T) {
	g := NewDefaultGrader()
	sel := "T"
	res, err := g.Grade(context.Background(), Q{Type: "true_false", Points: 1.5, Correct: []string{"T"}}, &sel)
	require.NoError(t, err)
	assert.Equal(t, 1.5, res.AutoPoints)

	_, err = g.Grade(context.Background(), Q{Type: "true_false", Points: 1}, 42)
	require.Error(t, err)
}

func TestFreeTextNeedsManual(t *testing.T) {
	g := NewDefaultGrader()
	for _, typ := range []string{"short_answer", "essay", "unknown"} {
		res, err := g.Grade(context.Background(), Q{Type: typ, Points: 10}, "some text")
		require.NoError(t, err)
		assert.True(t, res.NeedsManual, typ)
		assert.Zero(t, res.AutoPoints)
	}
}

type fixedStrategy float64

func (f fixedStrategy) Grade(_ context.Context, q Q, _ interface{}) (Result, error) {
	return Result{AutoPoints: float64(f), MaxPoints: q.Points}, nil
}

func TestWithStrategyOverrides(t *testing.T) {
	g := NewDefaultGrader(WithStrategy("essay", fixedStrategy(2)))
	res, err := g.Grade(context.Background(), Q{Type: "essay", Points: 4}, "x")
	require.NoError(t, err)
	assert.Equal(t, 2.0, res.AutoPoints)
	assert.False(t, res.NeedsManual)
}

func TestCheckPoints(t *testing.T) {
	require.NoError(t, CheckPoints(0, 5))
	require.NoError(t, CheckPoints(5, 5))
	require.NoError(t, CheckPoints(2.5, 5))
	require.ErrorIs(t, CheckPoints(-0.5, 5), ErrPointsOutOfRange)
	require.ErrorIs(t, CheckPoints(5.01, 5), ErrPointsOutOfRange)
}

func TestTotal(t *testing.T) {
	f := func(v float64) *float64 { return &v }
	assert.Equal(t, 0.0, Total(nil))
	assert.Equal(t, 7.5, Total([]*float64{f(5), nil, f(2.5)}))
	assert.Equal(t, 0.3, Total([]*float64{f(0.1), f(0.2)}))
}
