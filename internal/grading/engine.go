package grading

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// Q is a minimal view of a question needed for grading.
type Q struct {
	Type    string
	Points  float64
	Correct []string // ids of the options marked correct
}

// Result is the outcome of grading a single question response.
type Result struct {
	AutoPoints  float64  // points awarded automatically
	MaxPoints   float64  // the question's max points
	NeedsManual bool     // true if a grader must review
	Feedback    []string // optional notes
}

// Strategy grades a single question.
type Strategy interface {
	Grade(ctx context.Context, q Q, response interface{}) (Result, error)
}

// Grader routes by question type to the correct Strategy.
type Grader interface {
	Grade(ctx context.Context, q Q, response interface{}) (Result, error)
}

type defaultGrader struct {
	strategies map[string]Strategy
}

func (g *defaultGrader) Grade(ctx context.Context, q Q, response interface{}) (Result, error) {
	s, ok := g.strategies[q.Type]
	if !ok {
		return Result{MaxPoints: q.Points, NeedsManual: true, Feedback: []string{"no strategy available"}}, nil
	}
	return s.Grade(ctx, q, response)
}

// Engine options

type Option func(*config)

type config struct {
	strategies map[string]Strategy
}

// WithStrategy installs or replaces the strategy for a question type.
func WithStrategy(typ string, s Strategy) Option {
	return func(c *config) { c.strategies[typ] = s }
}

// NewDefaultGrader installs built-in strategies: option selection for
// multiple_choice and true_false, manual review for short_answer and essay.
func NewDefaultGrader(opts ...Option) Grader {
	cfg := &config{
		strategies: map[string]Strategy{
			"multiple_choice": optionStrategy{},
			"true_false":      optionStrategy{},
			"short_answer":    manualStrategy{},
			"essay":           manualStrategy{},
		},
	}
	for _, o := range opts {
		o(cfg)
	}
	return &defaultGrader{strategies: cfg.strategies}
}

// --- Strategies ---

// optionStrategy expects the selected option id as a string; nil or "" is
// an unanswered question and earns zero.
type optionStrategy struct{}

func (optionStrategy) Grade(_ context.Context, q Q, response interface{}) (Result, error) {
	res := Result{MaxPoints: q.Points}
	var sel string
	switch v := response.(type) {
	case nil:
	case string:
		sel = v
	case *string:
		if v != nil {
			sel = *v
		}
	default:
		return res, errors.New("response must be an option id")
	}
	if sel == "" {
		res.Feedback = append(res.Feedback, "unanswered")
		return res, nil
	}
	for _, k := range q.Correct {
		if sel == k {
			res.AutoPoints = q.Points
			return res, nil
		}
	}
	return res, nil
}

type manualStrategy struct{}

func (manualStrategy) Grade(_ context.Context, q Q, _ interface{}) (Result, error) {
	return Result{MaxPoints: q.Points, NeedsManual: true, Feedback: []string{"manual grading required"}}, nil
}

// helpers

var ErrPointsOutOfRange = errors.New("points out of range")

// CheckPoints validates a grader-supplied award against the question maximum.
func CheckPoints(awarded, max float64) error {
	if math.IsNaN(awarded) || math.IsInf(awarded, 0) || awarded < 0 || awarded > max {
		return fmt.Errorf("%v not in [0, %v]: %w", awarded, max, ErrPointsOutOfRange)
	}
	return nil
}

// Total sums awarded points, treating nil as zero, rounded to two decimals.
func Total(points []*float64) float64 {
	var sum float64
	for _, p := range points {
		if p != nil {
			sum += *p
		}
	}
	return math.Round(sum*100) / 100
}
