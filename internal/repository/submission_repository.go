package repository

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/stemsi/exstem-assessment/internal/model"
)

// SubmissionRepository records submissions, fetches grades and stores
// answer images on the learning platform.
type SubmissionRepository struct {
	client *PlatformClient
}

// NewSubmissionRepository creates a new SubmissionRepository.
func NewSubmissionRepository(client *PlatformClient) *SubmissionRepository {
	return &SubmissionRepository{client: client}
}

type recordSubmissionRequest struct {
	LearnerID string                  `json:"learner_id"`
	Entries   []model.SubmissionEntry `json:"entries"`
}

type uploadResponse struct {
	RemotePath string `json:"remote_path"`
}

// RecordSubmission stores the learner's normalized entries.
func (r *SubmissionRepository) RecordSubmission(ctx context.Context, examID, learnerID string, entries []model.SubmissionEntry) error {
	req := recordSubmissionRequest{LearnerID: learnerID, Entries: entries}
	if _, err := r.client.doJSON(ctx, http.MethodPost, pathJoin("exams", examID, "submissions"), req, nil); err != nil {
		return fmt.Errorf("record submission: %w", err)
	}
	return nil
}

// ComputeGrade returns the learner's grade, or nil when none exists.
func (r *SubmissionRepository) ComputeGrade(ctx context.Context, examID, learnerID string) (*model.GradeResult, error) {
	var grade model.GradeResult
	status, err := r.client.doJSON(ctx, http.MethodGet, pathJoin("exams", examID, "grades", learnerID), nil, &grade)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("compute grade: %w", err)
	}
	if status == http.StatusNoContent {
		return nil, nil
	}
	return &grade, nil
}

// DeleteSubmission removes the learner's submission. A missing submission
// counts as deleted.
func (r *SubmissionRepository) DeleteSubmission(ctx context.Context, examID, learnerID string) error {
	_, err := r.client.doJSON(ctx, http.MethodDelete, pathJoin("exams", examID, "submissions", learnerID), nil, nil)
	if err != nil && !IsNotFound(err) {
		return fmt.Errorf("delete submission: %w", err)
	}
	return nil
}

// UploadAnswerMedia sends the image bytes and returns the stored path.
func (r *SubmissionRepository) UploadAnswerMedia(ctx context.Context, examID, learnerID, questionID string, data []byte, contentType string) (string, error) {
	path := pathJoin("exams", examID, "questions", questionID, "media") + "?" + url.Values{"learner_id": {learnerID}}.Encode()

	var resp uploadResponse
	if _, err := r.client.do(ctx, http.MethodPost, path, bytes.NewReader(data), contentType, &resp); err != nil {
		return "", fmt.Errorf("upload media: %w", err)
	}
	if resp.RemotePath == "" {
		return "", errors.New("upload media: platform returned no remote path")
	}
	return resp.RemotePath, nil
}
