// Package models defines the application record and its review lifecycle.
//
// Transitions follow the Can/Apply split: CanX checks the precondition
// without side effects, ApplyX mutates. Stores run both inside one critical
// section so a failed check never leaves a partial write.
package models

import (
	"time"

	"github.com/shopspring/decimal"

	"aidledger/internal/documents"
	"aidledger/internal/payment"
	id "aidledger/pkg/domain"
	dErrors "aidledger/pkg/domain-errors"
	"aidledger/pkg/platform/audit"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

func (s Status) IsValid() bool {
	return s == StatusPending || s == StatusApproved || s == StatusRejected
}

// ParseStatus accepts the lowercase wire form.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "status must be one of pending, approved, rejected").
			WithDetail("status", raw)
	}
	return s, nil
}

type PaymentStatus string

const (
	PaymentNone      PaymentStatus = ""
	PaymentPending   PaymentStatus = "payment_pending"
	PaymentCompleted PaymentStatus = "payment_completed"
)

// Disbursement records the release of the benefit for a paid application.
type Disbursement struct {
	Reference  string          `json:"reference"`
	Amount     decimal.Decimal `json:"amount"`
	ReleasedBy id.UserID       `json:"released_by"`
	ReleasedAt time.Time       `json:"released_at"`
}

type Application struct {
	ID               id.ApplicationID     `json:"id"`
	SchemeID         id.SchemeID          `json:"scheme_id"`
	ApplicantID      id.UserID            `json:"applicant_id"`
	ApplicantName    string               `json:"applicant_name"`
	Documents        []documents.Document `json:"documents"`
	AdditionalInfo   string               `json:"additional_info,omitempty"`
	EligibilityScore *int                 `json:"eligibility_score"`
	Status           Status               `json:"status"`
	PaymentStatus    PaymentStatus        `json:"payment_status,omitempty"`
	SubmittedAt      time.Time            `json:"submitted_at"`
	ReviewedBy       *id.UserID           `json:"reviewed_by,omitempty"`
	ReviewedAt       *time.Time           `json:"reviewed_at,omitempty"`
	RejectionReason  string               `json:"rejection_reason,omitempty"`
	DisbursementRef  string               `json:"disbursement_ref,omitempty"`
	Payment          *payment.Record      `json:"payment,omitempty"`
	Disbursement     *Disbursement        `json:"disbursement,omitempty"`
	AuditTrail       []audit.Receipt      `json:"audit_trail"`
	Version          int                  `json:"version"`
}

// NewApplication builds a pending record. Documents must already cover the
// scheme's requirements.
func NewApplication(appID id.ApplicationID, schemeID id.SchemeID, applicant id.UserID, name string, docs []documents.Document, info string, now time.Time) *Application {
	return &Application{
		ID:             appID,
		SchemeID:       schemeID,
		ApplicantID:    applicant,
		ApplicantName:  name,
		Documents:      append([]documents.Document(nil), docs...),
		AdditionalInfo: info,
		Status:         StatusPending,
		SubmittedAt:    now,
		AuditTrail:     []audit.Receipt{},
		Version:        1,
	}
}

func (a *Application) IsOwnedBy(userID id.UserID) bool {
	return a.ApplicantID == userID
}

// invalidState reports an illegal transition along with where the record stands.
func (a *Application) invalidState(msg string) error {
	return dErrors.New(dErrors.CodeInvalidState, msg).
		WithDetail("status", string(a.Status)).
		WithDetail("payment_status", string(a.PaymentStatus))
}

// CanApprove allows approval only from pending.
func (a *Application) CanApprove() error {
	if a.Status != StatusPending {
		return a.invalidState("only pending applications can be approved")
	}
	return nil
}

// ApplyApproval records the reviewing admin and opens the payment step.
func (a *Application) ApplyApproval(admin id.UserID, disbursementRef string, now time.Time) {
	a.Status = StatusApproved
	a.PaymentStatus = PaymentPending
	a.ReviewedBy = &admin
	a.ReviewedAt = &now
	a.RejectionReason = ""
	a.DisbursementRef = disbursementRef
}

// CanReject allows rejection only from pending.
func (a *Application) CanReject() error {
	if a.Status != StatusPending {
		return a.invalidState("only pending applications can be rejected")
	}
	return nil
}

// ApplyRejection stores the reason verbatim.
func (a *Application) ApplyRejection(admin id.UserID, reason string, now time.Time) {
	a.Status = StatusRejected
	a.PaymentStatus = PaymentNone
	a.ReviewedBy = &admin
	a.ReviewedAt = &now
	a.RejectionReason = reason
}

// CanPay allows the owning applicant to pay once after approval.
func (a *Application) CanPay(payer id.UserID) error {
	if !a.IsOwnedBy(payer) {
		return a.invalidState("only the applicant can pay for this application")
	}
	if a.Status != StatusApproved {
		return a.invalidState("payment is only possible after approval")
	}
	if a.PaymentStatus != PaymentPending {
		return a.invalidState("application fee has already been paid")
	}
	return nil
}

func (a *Application) ApplyPayment(rec *payment.Record) {
	a.Payment = rec
	a.PaymentStatus = PaymentCompleted
}

// CanDisburse allows a single disbursement after payment.
func (a *Application) CanDisburse() error {
	if a.Status != StatusApproved || a.PaymentStatus != PaymentCompleted {
		return a.invalidState("benefit can only be released after payment")
	}
	if a.Disbursement != nil {
		return a.invalidState("benefit has already been released")
	}
	return nil
}

func (a *Application) ApplyDisbursement(admin id.UserID, amount decimal.Decimal, now time.Time) {
	a.Disbursement = &Disbursement{
		Reference:  a.DisbursementRef,
		Amount:     amount,
		ReleasedBy: admin,
		ReleasedAt: now,
	}
}

// RecordAudit appends the receipt of an event emitted for this record.
func (a *Application) RecordAudit(r audit.Receipt) {
	a.AuditTrail = append(a.AuditTrail, r)
}

// Clone returns a deep copy so stores can hand out records without aliasing.
func (a *Application) Clone() *Application {
	if a == nil {
		return nil
	}
	c := *a
	c.Documents = append([]documents.Document(nil), a.Documents...)
	c.AuditTrail = append([]audit.Receipt{}, a.AuditTrail...)
	if a.EligibilityScore != nil {
		v := *a.EligibilityScore
		c.EligibilityScore = &v
	}
	if a.ReviewedBy != nil {
		v := *a.ReviewedBy
		c.ReviewedBy = &v
	}
	if a.ReviewedAt != nil {
		v := *a.ReviewedAt
		c.ReviewedAt = &v
	}
	if a.Payment != nil {
		v := *a.Payment
		c.Payment = &v
	}
	if a.Disbursement != nil {
		v := *a.Disbursement
		c.Disbursement = &v
	}
	return &c
}
