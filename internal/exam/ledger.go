package exam

import "context"

// applyAnswers writes the submitted payload into the answer ledger. Every
// exam question present in the payload gets exactly one row for the attempt;
// an empty value keeps the row but records nothing. Nothing is written if
// any selected option does not belong to its question.
func (s *Service) applyAnswers(ctx context.Context, r Repository, ex Exam, attemptID string, payload map[string]string) error {
	if len(payload) == 0 {
		return nil
	}
	existing, err := r.ListAnswers(ctx, attemptID)
	if err != nil {
		return err
	}
	byQ := make(map[string]Answer, len(existing))
	for _, a := range existing {
		byQ[a.QuestionID] = a
	}

	var (
		writes []Answer
		fields []FieldError
	)
	for _, q := range ex.Questions {
		v, ok := payload[q.ID]
		if !ok {
			continue
		}
		ans, ok := byQ[q.ID]
		if !ok {
			ans = Answer{ID: s.newID(), AttemptID: attemptID, QuestionID: q.ID}
		}
		if v != "" {
			v := v
			if q.Type.Objective() {
				if _, ok := q.Option(v); !ok {
					fields = append(fields, FieldError{Field: q.ID, Message: "option " + v + " does not belong to question"})
					continue
				}
				ans.SelectedOptionID, ans.AnswerText = &v, nil
			} else {
				ans.AnswerText, ans.SelectedOptionID = &v, nil
			}
		}
		writes = append(writes, ans)
	}
	if len(fields) > 0 {
		return invalid(fields...)
	}
	for _, a := range writes {
		if err := r.UpsertAnswer(ctx, a); err != nil {
			return err
		}
	}
	return nil
}
