package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-assessment/internal/model"
)

const waitTimeout = 2 * time.Second

var errPlatformDown = errors.New("platform down")

// ── Exam source ─────────────────────────────────────────────────────

type fakeExams struct {
	paper *model.ExamPaper
	err   error
}

func (f *fakeExams) GetExam(_ context.Context, _ string) (*model.ExamPaper, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.paper, nil
}

func testPaper() *model.ExamPaper {
	return &model.ExamPaper{
		Exam: model.Exam{
			ID:              "exam-1",
			Name:            "Fractions",
			Level:           "grade-5",
			DurationSeconds: 60,
			QuestionIDs:     []model.ID{"q1", "q2", "q3"},
		},
		Questions: []model.Question{
			{
				ID:         "q1",
				PromptText: "Which is larger?",
				AnswerKind: model.AnswerKindMultipleChoice,
				Options:    []model.Option{{ID: "a", Text: "1/2"}, {ID: "b", Text: "3/4"}},
				Points:     1,
			},
			{ID: "q2", PromptText: "Explain why.", AnswerKind: model.AnswerKindFreeText, Points: 1},
			{ID: "q3", PromptText: "Photograph your working.", AnswerKind: model.AnswerKindImageUpload, Points: 1},
		},
	}
}

// ── Grading ─────────────────────────────────────────────────────────

type fakeGrading struct {
	mu sync.Mutex

	// current is what ComputeGrade returns; onRecord replaces it.
	current  *model.GradeResult
	onRecord *model.GradeResult

	recordErr  error
	computeErr error
	deleteErr  error

	// recordGate blocks RecordSubmission until closed.
	recordGate    chan struct{}
	recordStarted chan struct{}
	startedOnce   sync.Once

	recorded [][]model.SubmissionEntry
	calls    []string
}

func (f *fakeGrading) RecordSubmission(_ context.Context, _, _ string, entries []model.SubmissionEntry) error {
	f.mu.Lock()
	f.calls = append(f.calls, "record")
	f.recorded = append(f.recorded, entries)
	gate, started := f.recordGate, f.recordStarted
	f.mu.Unlock()

	if started != nil {
		f.startedOnce.Do(func() { close(started) })
	}
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recordErr != nil {
		return f.recordErr
	}
	f.current = f.onRecord
	return nil
}

func (f *fakeGrading) ComputeGrade(_ context.Context, _, _ string) (*model.GradeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "compute")
	if f.computeErr != nil {
		return nil, f.computeErr
	}
	return f.current, nil
}

func (f *fakeGrading) DeleteSubmission(_ context.Context, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "delete_submission")
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.current = nil
	return nil
}

func (f *fakeGrading) recordCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.recorded)
}

func (f *fakeGrading) lastRecorded() []model.SubmissionEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.recorded) == 0 {
		return nil
	}
	return f.recorded[len(f.recorded)-1]
}

func (f *fakeGrading) setRecordErr(err error) {
	f.mu.Lock()
	f.recordErr = err
	f.mu.Unlock()
}

// ── Media ───────────────────────────────────────────────────────────

type fakeUploader struct {
	mu      sync.Mutex
	fail    map[string]error
	uploads map[string]int
}

func (f *fakeUploader) UploadAnswerMedia(_ context.Context, _, _, questionID string, data []byte, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploads == nil {
		f.uploads = make(map[string]int)
	}
	f.uploads[questionID]++
	if err := f.fail[questionID]; err != nil {
		return "", err
	}
	return "answers/" + questionID + ".png", nil
}

func (f *fakeUploader) count(questionID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.uploads[questionID]
}

func pngBytes(t testing.TB, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// ── Certificates ────────────────────────────────────────────────────

type fakeCerts struct {
	mu        sync.Mutex
	certs     []model.Certificate
	issueErr  error
	listErr   error
	deleteErr error
	calls     []string
}

func (f *fakeCerts) IssueCertificate(_ context.Context, learnerID, unitID string) (*model.Certificate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "issue")
	if f.issueErr != nil {
		return nil, f.issueErr
	}
	c := model.Certificate{CurriculumUnitID: model.ID(unitID), URL: "https://certs.example/" + learnerID + "/" + unitID}
	f.certs = append(f.certs, c)
	return &c, nil
}

func (f *fakeCerts) ListCertificates(_ context.Context, _ string) ([]model.Certificate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "list")
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]model.Certificate(nil), f.certs...), nil
}

func (f *fakeCerts) DeleteCertificate(_ context.Context, _, unitID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "delete_certificate")
	if f.deleteErr != nil {
		return f.deleteErr
	}
	kept := f.certs[:0]
	for _, c := range f.certs {
		if string(c.CurriculumUnitID) != unitID {
			kept = append(kept, c)
		}
	}
	f.certs = kept
	return nil
}

// ── Completion cache ────────────────────────────────────────────────

type fakeCache struct {
	mu        sync.Mutex
	completed map[string]map[string]bool
	err       error
}

func (f *fakeCache) MarkCompleted(_ context.Context, learnerID, examID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.completed == nil {
		f.completed = make(map[string]map[string]bool)
	}
	if f.completed[learnerID] == nil {
		f.completed[learnerID] = make(map[string]bool)
	}
	f.completed[learnerID][examID] = true
	return nil
}

func (f *fakeCache) Forget(_ context.Context, learnerID, examID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	delete(f.completed[learnerID], examID)
	return nil
}

func (f *fakeCache) CompletedExams(_ context.Context, learnerID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var ids []string
	for id := range f.completed[learnerID] {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeCache) has(learnerID, examID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completed[learnerID][examID]
}

// ── Events ──────────────────────────────────────────────────────────

type eventRecorder struct {
	mu     sync.Mutex
	events []model.SessionEvent
	ch     chan model.SessionEvent
}

func newEventRecorder() *eventRecorder {
	return &eventRecorder{ch: make(chan model.SessionEvent, 256)}
}

func (r *eventRecorder) Notify(_ context.Context, ev model.SessionEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	select {
	case r.ch <- ev:
	default:
	}
}

func (r *eventRecorder) has(typ model.EventType) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if ev.Type == typ {
			return true
		}
	}
	return false
}

// waitFor consumes events until one of the given type arrives.
func (r *eventRecorder) waitFor(t testing.TB, typ model.EventType) model.SessionEvent {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case ev := <-r.ch:
			if ev.Type == typ {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", typ)
			return model.SessionEvent{}
		}
	}
}

// ── Ticker ──────────────────────────────────────────────────────────

type manualTicker struct {
	ch       chan time.Time
	stopOnce sync.Once
	stopped  chan struct{}
}

func (t *manualTicker) C() <-chan time.Time { return t.ch }

func (t *manualTicker) Stop() { t.stopOnce.Do(func() { close(t.stopped) }) }

// Tick delivers one tick and waits until the countdown has received it.
func (t *manualTicker) Tick(tb testing.TB) {
	tb.Helper()
	select {
	case t.ch <- time.Now():
	case <-time.After(waitTimeout):
		tb.Fatal("tick was not consumed")
	}
}

type tickerSource struct {
	created chan *manualTicker
}

func newTickerSource() *tickerSource {
	return &tickerSource{created: make(chan *manualTicker, 8)}
}

func (s *tickerSource) factory(time.Duration) Ticker {
	t := &manualTicker{ch: make(chan time.Time), stopped: make(chan struct{})}
	s.created <- t
	return t
}

func (s *tickerSource) next(tb testing.TB) *manualTicker {
	tb.Helper()
	select {
	case t := <-s.created:
		return t
	case <-time.After(waitTimeout):
		tb.Fatal("no ticker was created")
		return nil
	}
}

// ── Session environment ─────────────────────────────────────────────

type testEnv struct {
	exams    *fakeExams
	grading  *fakeGrading
	uploader *fakeUploader
	certs    *fakeCerts
	cache    *fakeCache
	events   *eventRecorder
	tickers  *tickerSource
}

func newTestEnv() *testEnv {
	return &testEnv{
		exams:    &fakeExams{paper: testPaper()},
		grading:  &fakeGrading{onRecord: &model.GradeResult{Score: 80, Level: "proficient", CurriculumUnitID: "unit-7"}},
		uploader: &fakeUploader{},
		certs:    &fakeCerts{},
		cache:    &fakeCache{},
		events:   newEventRecorder(),
		tickers:  newTickerSource(),
	}
}

func (e *testEnv) deps() SessionDeps {
	return SessionDeps{
		Exams:        e.exams,
		Grading:      e.grading,
		Media:        e.uploader,
		Certificates: e.certs,
		Completions:  e.cache,
		Notifier:     e.events,
		NewTicker:    e.tickers.factory,
		Log:          zerolog.Nop(),
	}
}

func (e *testEnv) session(t *testing.T, opts SessionOptions) *ExamSession {
	t.Helper()
	s := NewExamSession(context.Background(), "exam-1", "learner-1", e.deps(), opts)
	t.Cleanup(s.Close)
	return s
}

// started loads and starts a session and returns its ticker.
func (e *testEnv) started(t *testing.T, opts SessionOptions) (*ExamSession, *manualTicker) {
	t.Helper()
	s := e.session(t, opts)
	if _, err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return s, e.tickers.next(t)
}
