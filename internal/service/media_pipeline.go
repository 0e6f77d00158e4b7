package service

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/stemsi/exstem-assessment/internal/model"
)

const defaultUploadConcurrency = 4

// mediaCapture is one captured handle and its staging/upload progress.
type mediaCapture struct {
	handle *model.MediaHandle
	ready  chan struct{}
	staged *StagedMedia
	err    error

	// remotePath is set once an upload succeeded, guarded by MediaPipeline.mu.
	remotePath string
}

// MediaResolution is the settled outcome of uploading every captured image.
type MediaResolution struct {
	Paths    map[string]string
	Failures []*UploadError
}

// MediaPipeline stages captured images as soon as they arrive and uploads
// all of them concurrently at submit time.
type MediaPipeline struct {
	uploader    MediaUploader
	stager      *MediaStager
	concurrency int
	log         zerolog.Logger

	mu       sync.Mutex
	captures map[string]*mediaCapture
}

// NewMediaPipeline creates a MediaPipeline.
func NewMediaPipeline(uploader MediaUploader, stager *MediaStager, concurrency int, log zerolog.Logger) *MediaPipeline {
	if concurrency <= 0 {
		concurrency = defaultUploadConcurrency
	}
	if stager == nil {
		stager = NewMediaStager(0, 0)
	}
	return &MediaPipeline{
		uploader:    uploader,
		stager:      stager,
		concurrency: concurrency,
		log:         log.With().Str("component", "media_pipeline").Logger(),
		captures:    make(map[string]*mediaCapture),
	}
}

// Capture registers h for questionID, replacing any previous handle for the
// same question. Staging starts in the background.
func (p *MediaPipeline) Capture(questionID string, h *model.MediaHandle) {
	c := &mediaCapture{handle: h, ready: make(chan struct{})}

	p.mu.Lock()
	if old, ok := p.captures[questionID]; ok {
		p.log.Debug().
			Str("question_id", questionID).
			Str("discarded_handle", old.handle.ID.String()).
			Msg("Replacing captured media")
	}
	p.captures[questionID] = c
	p.mu.Unlock()

	go func() {
		defer close(c.ready)
		c.staged, c.err = p.stager.Stage(h)
	}()
}

// Pending returns the number of questions with captured media.
func (p *MediaPipeline) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.captures)
}

// Resolve uploads every captured image concurrently and waits for all of
// them to settle. A failed upload is reported in Failures and never stops
// the others.
func (p *MediaPipeline) Resolve(ctx context.Context, examID, learnerID string) MediaResolution {
	p.mu.Lock()
	items := make(map[string]*mediaCapture, len(p.captures))
	for qid, c := range p.captures {
		items[qid] = c
	}
	p.mu.Unlock()

	res := MediaResolution{Paths: make(map[string]string, len(items))}
	if len(items) == 0 {
		return res
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(p.concurrency)

	for qid, c := range items {
		g.Go(func() error {
			path, err := p.resolveOne(ctx, examID, learnerID, qid, c)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Failures = append(res.Failures, &UploadError{QuestionID: qid, Err: err})
				return nil
			}
			res.Paths[qid] = path
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(res.Failures, func(i, j int) bool {
		return res.Failures[i].QuestionID < res.Failures[j].QuestionID
	})

	p.log.Info().
		Str("exam_id", examID).
		Int("uploaded", len(res.Paths)).
		Int("failed", len(res.Failures)).
		Msg("Media resolved")

	return res
}

func (p *MediaPipeline) resolveOne(ctx context.Context, examID, learnerID, questionID string, c *mediaCapture) (string, error) {
	select {
	case <-c.ready:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	if c.err != nil {
		return "", c.err
	}

	p.mu.Lock()
	cached := c.remotePath
	p.mu.Unlock()
	if cached != "" {
		return cached, nil
	}

	if p.uploader == nil {
		return "", errors.New("no media uploader configured")
	}

	path, err := p.uploader.UploadAnswerMedia(ctx, examID, learnerID, questionID, c.staged.Data, c.staged.ContentType)
	if err != nil {
		p.log.Warn().Err(err).
			Str("exam_id", examID).
			Str("question_id", questionID).
			Msg("Answer media upload failed")
		return "", err
	}
	if path == "" {
		return "", errors.New("upload returned an empty remote path")
	}

	p.mu.Lock()
	c.remotePath = path
	p.mu.Unlock()
	return path, nil
}

// Reset discards every captured handle.
func (p *MediaPipeline) Reset() {
	p.mu.Lock()
	p.captures = make(map[string]*mediaCapture)
	p.mu.Unlock()
}
