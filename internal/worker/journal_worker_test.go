package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-assessment/internal/model"
)

func mustPayload(t *testing.T, ev model.SessionEvent) []byte {
	t.Helper()
	raw, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return raw
}

func TestToAttemptEventCopiesFields(t *testing.T) {
	score := 72.5
	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	raw := mustPayload(t, model.SessionEvent{
		Type:      model.EventGraded,
		ExamID:    "exam-1",
		LearnerID: "learner-1",
		Score:     &score,
		Level:     "proficient",
		At:        at,
	})

	got, err := toAttemptEvent(raw)
	if err != nil {
		t.Fatalf("toAttemptEvent: %v", err)
	}
	if got.Type != model.EventGraded || got.ExamID != "exam-1" || got.LearnerID != "learner-1" {
		t.Fatalf("event = %+v", got)
	}
	if got.Score == nil || *got.Score != score {
		t.Fatalf("score = %v, want %v", got.Score, score)
	}
	if got.Detail != "level proficient" {
		t.Fatalf("detail = %q, want %q", got.Detail, "level proficient")
	}
	if !got.OccurredAt.Equal(at) {
		t.Fatalf("occurred_at = %v, want %v", got.OccurredAt, at)
	}
}

func TestToAttemptEventIDIsStable(t *testing.T) {
	raw := mustPayload(t, model.SessionEvent{
		Type:       model.EventUploadWarning,
		ExamID:     "exam-1",
		LearnerID:  "learner-1",
		QuestionID: "q3",
		Detail:     "timeout",
		At:         time.Unix(1700000000, 0).UTC(),
	})

	a, err := toAttemptEvent(raw)
	if err != nil {
		t.Fatalf("toAttemptEvent: %v", err)
	}
	b, _ := toAttemptEvent(raw)
	if a.ID != b.ID {
		t.Fatalf("ids differ for the same payload: %s vs %s", a.ID, b.ID)
	}
	if a.Detail != "question q3: timeout" {
		t.Fatalf("detail = %q", a.Detail)
	}

	other := mustPayload(t, model.SessionEvent{
		Type:      model.EventUploadWarning,
		ExamID:    "exam-1",
		LearnerID: "learner-1",
		At:        time.Unix(1700000001, 0).UTC(),
	})
	c, _ := toAttemptEvent(other)
	if c.ID == a.ID {
		t.Fatal("different payloads share an id")
	}
}

func TestToAttemptEventRejectsIncomplete(t *testing.T) {
	cases := map[string][]byte{
		"not json":   []byte("{"),
		"no type":    []byte(`{"exam_id":"e","learner_id":"l"}`),
		"no learner": []byte(`{"type":"graded","exam_id":"e"}`),
	}
	for name, raw := range cases {
		if _, err := toAttemptEvent(raw); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

type fakeWriter struct {
	batchErr error
	batches  int
	singles  []model.AttemptEvent
}

func (f *fakeWriter) InsertBatch(_ context.Context, events []model.AttemptEvent) error {
	f.batches++
	return f.batchErr
}

func (f *fakeWriter) Insert(_ context.Context, e model.AttemptEvent) error {
	f.singles = append(f.singles, e)
	return nil
}

func TestFlushFallsBackToSingleInserts(t *testing.T) {
	store := &fakeWriter{batchErr: errors.New("deadlock detected")}
	w := NewJournalWorker(store, nil, zerolog.Nop())

	var batch []journalItem
	for _, typ := range []model.EventType{model.EventStateChanged, model.EventGraded} {
		raw := mustPayload(t, model.SessionEvent{Type: typ, ExamID: "e", LearnerID: "l", At: time.Now()})
		ev, err := toAttemptEvent(raw)
		if err != nil {
			t.Fatalf("toAttemptEvent: %v", err)
		}
		batch = append(batch, journalItem{raw: string(raw), event: ev})
	}

	w.flushSafe(context.Background(), batch)

	if store.batches != 1 {
		t.Fatalf("batches = %d, want 1", store.batches)
	}
	if len(store.singles) != 2 {
		t.Fatalf("single inserts = %d, want 2", len(store.singles))
	}
}

func TestFlushEmptyBatchIsNoop(t *testing.T) {
	store := &fakeWriter{}
	w := NewJournalWorker(store, nil, zerolog.Nop())
	w.flushSafe(context.Background(), nil)
	if store.batches != 0 {
		t.Fatalf("batches = %d, want 0", store.batches)
	}
}
