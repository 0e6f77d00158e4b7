package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-assessment/internal/model"
)

type perExamGrading struct {
	fakeGrading
	mu     sync.Mutex
	grades map[string]*model.GradeResult
}

func (g *perExamGrading) ComputeGrade(_ context.Context, examID, _ string) (*model.GradeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.grades[examID], nil
}

type fakeJournal struct {
	events []model.AttemptEvent
	limit  int
}

func (f *fakeJournal) ListByLearnerExam(_ context.Context, _, _ string, limit int) ([]model.AttemptEvent, error) {
	f.limit = limit
	return f.events, nil
}

func TestProgressService_CompletionsUnionServerAndCache(t *testing.T) {
	grading := &perExamGrading{grades: map[string]*model.GradeResult{
		"exam-1": {Score: 80},
		"exam-2": {Score: 0},
	}}
	cache := &fakeCache{}
	_ = cache.MarkCompleted(context.Background(), "learner-1", "exam-2")
	_ = cache.MarkCompleted(context.Background(), "learner-1", "exam-3")

	svc := NewProgressService(grading, cache, &fakeJournal{}, zerolog.Nop())
	got, err := svc.Completions(context.Background(), "learner-1", []string{"exam-1", "exam-2", "exam-3", "exam-4"})
	if err != nil {
		t.Fatalf("Completions: %v", err)
	}

	want := []struct {
		completed bool
		source    string
	}{
		{true, CompletionSourceServer},
		{true, CompletionSourceBoth},
		{true, CompletionSourceCache},
		{false, ""},
	}
	for i, w := range want {
		if got[i].Completed != w.completed || got[i].Source != w.source {
			t.Errorf("%s = %+v, want completed=%v source=%q", got[i].ExamID, got[i], w.completed, w.source)
		}
	}
	if !cache.has("learner-1", "exam-1") {
		t.Error("server completion should be written back to the cache")
	}
}

func TestProgressService_CacheOutageFallsBackToServer(t *testing.T) {
	grading := &perExamGrading{grades: map[string]*model.GradeResult{"exam-1": {Score: 60}}}
	cache := &fakeCache{err: errors.New("redis down")}

	svc := NewProgressService(grading, cache, &fakeJournal{}, zerolog.Nop())
	got, err := svc.Completions(context.Background(), "learner-1", []string{"exam-1"})
	if err != nil {
		t.Fatalf("Completions: %v", err)
	}
	if !got[0].Completed || got[0].Source != CompletionSourceServer {
		t.Errorf("completion = %+v, want server completed", got[0])
	}
}

func TestProgressService_HistoryClampsLimit(t *testing.T) {
	journal := &fakeJournal{events: []model.AttemptEvent{{Type: model.EventGraded}}}
	svc := NewProgressService(&fakeGrading{}, nil, journal, zerolog.Nop())

	events, err := svc.History(context.Background(), "learner-1", "exam-1", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(events) != 1 || journal.limit != 100 {
		t.Errorf("events = %d, limit = %d, want 1 and 100", len(events), journal.limit)
	}
}
