package handler

import (
	"context"

	"github.com/stemsi/exstem-assessment/internal/i18n"
	"github.com/stemsi/exstem-assessment/internal/model"
)

// localizeSnapshot fills in the learner-facing text of every pending notice.
func localizeSnapshot(ctx context.Context, snap model.SessionSnapshot) model.SessionSnapshot {
	if len(snap.Notices) == 0 {
		return snap
	}
	notices := make([]model.Notice, len(snap.Notices))
	for i, n := range snap.Notices {
		n.Message = i18n.Td(ctx, "notice."+string(n.Kind), map[string]any{"QuestionID": n.QuestionID})
		notices[i] = n
	}
	snap.Notices = notices
	return snap
}
