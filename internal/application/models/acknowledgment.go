package models

import (
	"fmt"
	"strings"
	"time"

	"aidledger/pkg/platform/audit"
)

// Acknowledgment is the receipt an applicant can download after paying.
type Acknowledgment struct {
	ApplicationID   string    `json:"application_number"`
	SchemeID        string    `json:"scheme_id"`
	SchemeTitle     string    `json:"scheme_name"`
	ApplicantName   string    `json:"applicant_name"`
	SubmittedAt     time.Time `json:"date_of_submission"`
	Status          string    `json:"status"`
	TransactionID   string    `json:"transaction_id"`
	PaymentMethod   string    `json:"payment_method"`
	AmountPaid      string    `json:"amount_paid"`
	PaidAt          time.Time `json:"payment_date"`
	ApplicationHash string    `json:"application_hash,omitempty"`
	PaymentHash     string    `json:"payment_hash,omitempty"`
}

// NewAcknowledgment requires a completed payment.
func NewAcknowledgment(app *Application, schemeTitle string) (*Acknowledgment, error) {
	if app.PaymentStatus != PaymentCompleted || app.Payment == nil {
		return nil, app.invalidState("acknowledgment is available after payment")
	}
	ack := &Acknowledgment{
		ApplicationID: app.ID.String(),
		SchemeID:      app.SchemeID.String(),
		SchemeTitle:   schemeTitle,
		ApplicantName: app.ApplicantName,
		SubmittedAt:   app.SubmittedAt,
		Status:        string(app.Status),
		TransactionID: app.Payment.TransactionID,
		PaymentMethod: string(app.Payment.Method),
		AmountPaid:    app.Payment.Breakdown.Total.StringFixed(2),
		PaidAt:        app.Payment.CompletedAt,
		PaymentHash:   app.Payment.AuditHash,
	}
	for _, r := range app.AuditTrail {
		if r.Type == audit.EventApplicationSubmitted {
			ack.ApplicationHash = r.Hash
			break
		}
	}
	return ack, nil
}

// Text renders the receipt as plain text.
func (a *Acknowledgment) Text() string {
	var b strings.Builder
	b.WriteString("Application Acknowledgment\n")
	b.WriteString("==========================\n")
	line := func(label, value string) {
		if value != "" {
			fmt.Fprintf(&b, "%-20s %s\n", label+":", value)
		}
	}
	line("Application Number", a.ApplicationID)
	line("Scheme", a.SchemeTitle)
	line("Applicant", a.ApplicantName)
	line("Date of Submission", a.SubmittedAt.UTC().Format("2006-01-02 15:04 MST"))
	line("Status", a.Status)
	b.WriteString("\nPayment\n-------\n")
	line("Transaction ID", a.TransactionID)
	line("Method", a.PaymentMethod)
	line("Amount Paid", "INR "+a.AmountPaid)
	line("Payment Date", a.PaidAt.UTC().Format("2006-01-02 15:04 MST"))
	line("Application Hash", a.ApplicationHash)
	line("Payment Hash", a.PaymentHash)
	return b.String()
}
