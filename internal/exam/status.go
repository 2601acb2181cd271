package exam

type AttemptStatus string

const (
	StatusInProgress AttemptStatus = "in_progress"
	StatusSubmitted  AttemptStatus = "submitted"
	StatusGraded     AttemptStatus = "graded"
	StatusArchived   AttemptStatus = "archived"
)

// transitions lists the legal edges of the attempt state machine.
// graded -> graded is a re-grade.
var transitions = map[AttemptStatus][]AttemptStatus{
	StatusInProgress: {StatusSubmitted},
	StatusSubmitted:  {StatusGraded},
	StatusGraded:     {StatusGraded, StatusArchived},
}

func (s AttemptStatus) Valid() bool {
	switch s {
	case StatusInProgress, StatusSubmitted, StatusGraded, StatusArchived:
		return true
	}
	return false
}

// Final reports whether the attempt can no longer receive answers.
func (s AttemptStatus) Final() bool { return s != StatusInProgress }

func CanTransition(from, to AttemptStatus) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// predecessors returns every status with a legal edge into to.
func predecessors(to AttemptStatus) []AttemptStatus {
	var out []AttemptStatus
	for _, from := range []AttemptStatus{StatusInProgress, StatusSubmitted, StatusGraded, StatusArchived} {
		if CanTransition(from, to) {
			out = append(out, from)
		}
	}
	return out
}

type QuestionType string

const (
	MultipleChoice QuestionType = "multiple_choice"
	TrueFalse      QuestionType = "true_false"
	ShortAnswer    QuestionType = "short_answer"
	Essay          QuestionType = "essay"
)

func (t QuestionType) Valid() bool {
	switch t {
	case MultipleChoice, TrueFalse, ShortAnswer, Essay:
		return true
	}
	return false
}

// Objective question types are answered by option selection and can be auto-graded.
func (t QuestionType) Objective() bool { return t == MultipleChoice || t == TrueFalse }
