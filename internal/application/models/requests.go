package models

import (
	"strings"

	"github.com/shopspring/decimal"

	"aidledger/internal/documents"
	id "aidledger/pkg/domain"
	dErrors "aidledger/pkg/domain-errors"
)

const maxAdditionalInfo = 4000

type SubmitRequest struct {
	SchemeID       string               `json:"scheme_id"`
	Documents      []documents.Document `json:"documents"`
	AdditionalInfo string               `json:"additional_info"`
}

func (r *SubmitRequest) Normalize() {
	if r == nil {
		return
	}
	r.SchemeID = strings.TrimSpace(r.SchemeID)
	r.AdditionalInfo = strings.TrimSpace(r.AdditionalInfo)
	for i := range r.Documents {
		r.Documents[i].Name = strings.TrimSpace(r.Documents[i].Name)
		r.Documents[i].StorageRef = strings.TrimSpace(r.Documents[i].StorageRef)
	}
}

func (r *SubmitRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if _, err := id.ParseSchemeID(r.SchemeID); err != nil {
		return err
	}
	if len(r.AdditionalInfo) > maxAdditionalInfo {
		return dErrors.New(dErrors.CodeValidation, "additional info is too long").WithDetail("fields", []string{"additional_info"})
	}
	return documents.CheckEntries(r.Documents)
}

// ReviewRequest optionally pins the version the reviewer looked at.
type ReviewRequest struct {
	ExpectedVersion *int `json:"expected_version,omitempty"`
}

// RejectRequest carries the reason shown to the applicant. It is stored as sent.
type RejectRequest struct {
	Reason          string `json:"reason"`
	ExpectedVersion *int   `json:"expected_version,omitempty"`
}

func (r *RejectRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if strings.TrimSpace(r.Reason) == "" {
		return dErrors.New(dErrors.CodeValidation, "rejection reason is required").WithDetail("fields", []string{"reason"})
	}
	return nil
}

type DisburseRequest struct {
	Amount          decimal.Decimal `json:"amount"`
	ExpectedVersion *int            `json:"expected_version,omitempty"`
}

func (r *DisburseRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if !r.Amount.IsPositive() {
		return dErrors.New(dErrors.CodeValidation, "disbursement amount must be positive").WithDetail("fields", []string{"amount"})
	}
	return nil
}

// CheckVersion fails with a conflict when the caller saw a stale record.
func CheckVersion(app *Application, expected *int) error {
	if expected != nil && *expected != app.Version {
		return dErrors.New(dErrors.CodeConflict, "application was modified concurrently").
			WithDetail("expected_version", *expected).
			WithDetail("current_version", app.Version)
	}
	return nil
}

func (r *ReviewRequest) Validate() error {
	if r != nil && r.ExpectedVersion != nil && *r.ExpectedVersion < 1 {
		return dErrors.New(dErrors.CodeValidation, "expected_version must be positive").WithDetail("fields", []string{"expected_version"})
	}
	return nil
}
