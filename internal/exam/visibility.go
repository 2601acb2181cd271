package exam

import (
	"fmt"
	"strings"
	"time"
)

type VisibilityMode string

const (
	VisibleImmediately VisibilityMode = "immediate"
	VisibleAfter       VisibilityMode = "after"
	VisibleOnGraded    VisibilityMode = "on-graded"
)

// ResultVisibility decides when a student may see their own results.
// Text form: "immediate", "after:<RFC3339>" or "on-graded".
type ResultVisibility struct {
	Mode  VisibilityMode
	After time.Time
}

func ParseResultVisibility(s string) (ResultVisibility, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "" || s == string(VisibleOnGraded):
		return ResultVisibility{Mode: VisibleOnGraded}, nil
	case s == string(VisibleImmediately):
		return ResultVisibility{Mode: VisibleImmediately}, nil
	case strings.HasPrefix(s, string(VisibleAfter)+":"):
		t, err := time.Parse(time.RFC3339, strings.TrimPrefix(s, string(VisibleAfter)+":"))
		if err != nil {
			return ResultVisibility{}, fmt.Errorf("result visibility %q: %w", s, err)
		}
		return ResultVisibility{Mode: VisibleAfter, After: t.UTC()}, nil
	}
	return ResultVisibility{}, fmt.Errorf("result visibility %q: unknown mode", s)
}

func (v ResultVisibility) String() string {
	switch v.Mode {
	case VisibleImmediately:
		return string(VisibleImmediately)
	case VisibleAfter:
		return string(VisibleAfter) + ":" + v.After.UTC().Format(time.RFC3339)
	default:
		return string(VisibleOnGraded)
	}
}

func (v ResultVisibility) MarshalText() ([]byte, error) { return []byte(v.String()), nil }

func (v *ResultVisibility) UnmarshalText(b []byte) error {
	p, err := ParseResultVisibility(string(b))
	if err != nil {
		return err
	}
	*v = p
	return nil
}

// CanViewResults applies the owner-facing policy. A graded attempt is always
// visible to its owner whatever the mode; staff bypass this check entirely.
func CanViewResults(v ResultVisibility, a Attempt, now time.Time) bool {
	if a.Status == StatusInProgress {
		return false
	}
	switch {
	case v.Mode == VisibleImmediately:
		return true
	case v.Mode == VisibleAfter && !now.Before(v.After):
		return true
	}
	return a.Status == StatusGraded || a.Status == StatusArchived
}
