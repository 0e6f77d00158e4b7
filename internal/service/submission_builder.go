package service

import (
	"github.com/stemsi/exstem-assessment/internal/model"
)

// BuildSubmission produces exactly one entry per question, in question
// order. media holds the remote paths of successfully uploaded images;
// image questions without one get a nil media path.
func BuildSubmission(questions []model.Question, answers map[string]model.Answer, media map[string]string) []model.SubmissionEntry {
	entries := make([]model.SubmissionEntry, 0, len(questions))

	for _, q := range questions {
		qid := string(q.ID)
		entry := model.SubmissionEntry{QuestionID: qid}
		answer, answered := answers[qid]

		switch q.AnswerKind {
		case model.AnswerKindMultipleChoice:
			if answered {
				entry.Answer = answer.OptionID
			}
		case model.AnswerKindFreeText:
			if answered {
				entry.Answer = answer.Text
			}
		case model.AnswerKindImageUpload:
			if path, ok := media[qid]; ok {
				p := path
				entry.Media = &p
			}
		}

		entries = append(entries, entry)
	}

	return entries
}
