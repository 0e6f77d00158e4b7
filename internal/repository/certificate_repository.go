package repository

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/stemsi/exstem-assessment/internal/model"
)

// CertificateRepository manages learner certificates on the learning platform.
type CertificateRepository struct {
	client *PlatformClient
}

// NewCertificateRepository creates a new CertificateRepository.
func NewCertificateRepository(client *PlatformClient) *CertificateRepository {
	return &CertificateRepository{client: client}
}

type issueCertificateRequest struct {
	CurriculumUnitID string `json:"curriculum_unit_id"`
}

type issueCertificateResponse struct {
	ID             model.ID `json:"id"`
	CertificateURL string   `json:"certificate_url"`
}

// IssueCertificate creates a certificate for a curriculum unit.
func (r *CertificateRepository) IssueCertificate(ctx context.Context, learnerID, curriculumUnitID string) (*model.Certificate, error) {
	var resp issueCertificateResponse
	req := issueCertificateRequest{CurriculumUnitID: curriculumUnitID}
	if _, err := r.client.doJSON(ctx, http.MethodPost, pathJoin("learners", learnerID, "certificates"), req, &resp); err != nil {
		return nil, fmt.Errorf("issue certificate: %w", err)
	}
	return &model.Certificate{
		ID:               resp.ID,
		LearnerID:        learnerID,
		CurriculumUnitID: model.ID(curriculumUnitID),
		URL:              resp.CertificateURL,
		IssuedAt:         time.Now().UTC(),
	}, nil
}

// ListCertificates returns every certificate held by the learner.
func (r *CertificateRepository) ListCertificates(ctx context.Context, learnerID string) ([]model.Certificate, error) {
	var certs []model.Certificate
	if _, err := r.client.doJSON(ctx, http.MethodGet, pathJoin("learners", learnerID, "certificates"), nil, &certs); err != nil {
		return nil, fmt.Errorf("list certificates: %w", err)
	}
	return certs, nil
}

// DeleteCertificate removes the learner's certificate for a curriculum unit.
func (r *CertificateRepository) DeleteCertificate(ctx context.Context, learnerID, curriculumUnitID string) error {
	if _, err := r.client.doJSON(ctx, http.MethodDelete, pathJoin("learners", learnerID, "certificates", curriculumUnitID), nil, nil); err != nil {
		return fmt.Errorf("delete certificate: %w", err)
	}
	return nil
}
