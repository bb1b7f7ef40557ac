// Package models describes welfare schemes and the admin requests that shape them.
package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	id "aidledger/pkg/domain"
	dErrors "aidledger/pkg/domain-errors"
	platformstrings "aidledger/pkg/platform/strings"
)

// Status is set by administrators. It is never derived from the date window.
type Status string

const (
	StatusActive   Status = "active"
	StatusUpcoming Status = "upcoming"
	StatusClosed   Status = "closed"
)

func (s Status) IsValid() bool {
	return s == StatusActive || s == StatusUpcoming || s == StatusClosed
}

func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.IsValid() {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown scheme status %q", raw)
	}
	return s, nil
}

// DateLayout is the wire format of scheme dates.
const DateLayout = "2006-01-02"

// Date is a calendar day in UTC.
type Date struct {
	time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, dErrors.Newf(dErrors.CodeValidation, "date %q must be YYYY-MM-DD", s)
	}
	return Date{t}, nil
}

// FromTime truncates t to its UTC calendar day.
func FromTime(t time.Time) Date {
	y, m, d := t.UTC().Date()
	return NewDate(y, m, d)
}

func (d Date) String() string { return d.Format(DateLayout) }

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d *Date) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := ParseDate(node.Value)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Scheme is a government programme citizens apply to.
type Scheme struct {
	ID                id.SchemeID      `json:"id"`
	Title             string           `json:"title"`
	Description       string           `json:"description"`
	RequiredDocuments []string         `json:"required_documents"`
	Eligibility       []string         `json:"eligibility"`
	Benefits          string           `json:"benefits"`
	StartDate         Date             `json:"start_date"`
	EndDate           Date             `json:"end_date"`
	Status            Status           `json:"status"`
	// Fee is advertised in the catalog only. Checkout always charges the
	// fixed payment.Quote schedule.
	Fee               *decimal.Decimal `json:"fee,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// CanAcceptApplications returns an error unless the scheme is active.
func (s *Scheme) CanAcceptApplications() error {
	switch s.Status {
	case StatusActive:
		return nil
	case StatusUpcoming:
		return dErrors.New(dErrors.CodeInvalidState, "scheme is not open for applications yet").
			WithDetail("scheme_status", string(s.Status))
	default:
		return dErrors.New(dErrors.CodeInvalidState, "scheme is closed").
			WithDetail("scheme_status", string(s.Status))
	}
}

// Validate checks the scheme invariants.
func (s *Scheme) Validate() error {
	var invalid []string
	if s.ID == "" {
		invalid = append(invalid, "id")
	}
	if strings.TrimSpace(s.Title) == "" {
		invalid = append(invalid, "title")
	}
	if len(s.RequiredDocuments) == 0 {
		invalid = append(invalid, "required_documents")
	}
	if !s.Status.IsValid() {
		invalid = append(invalid, "status")
	}
	if s.StartDate.IsZero() {
		invalid = append(invalid, "start_date")
	}
	if s.EndDate.IsZero() {
		invalid = append(invalid, "end_date")
	}
	if s.Fee != nil && !s.Fee.IsPositive() {
		invalid = append(invalid, "fee")
	}
	if len(invalid) > 0 {
		return dErrors.New(dErrors.CodeValidation, "invalid scheme").WithDetail("fields", invalid)
	}
	if s.StartDate.After(s.EndDate.Time) {
		return dErrors.New(dErrors.CodeValidation, "start_date must not be after end_date").
			WithDetail("fields", []string{"start_date", "end_date"})
	}
	return nil
}

// Clone returns a deep copy.
func (s *Scheme) Clone() *Scheme {
	c := *s
	c.RequiredDocuments = append([]string(nil), s.RequiredDocuments...)
	c.Eligibility = append([]string(nil), s.Eligibility...)
	if s.Fee != nil {
		fee := *s.Fee
		c.Fee = &fee
	}
	return &c
}

// CreateRequest is the admin payload for a new scheme and the seed file entry.
type CreateRequest struct {
	ID                string           `json:"id,omitempty" yaml:"id"`
	Title             string           `json:"title" yaml:"title"`
	Description       string           `json:"description" yaml:"description"`
	RequiredDocuments []string         `json:"required_documents" yaml:"required_documents"`
	Eligibility       []string         `json:"eligibility" yaml:"eligibility"`
	Benefits          string           `json:"benefits" yaml:"benefits"`
	StartDate         Date             `json:"start_date" yaml:"start_date"`
	EndDate           Date             `json:"end_date" yaml:"end_date"`
	Status            Status           `json:"status,omitempty" yaml:"status"`
	Fee               *decimal.Decimal `json:"fee,omitempty" yaml:"fee"`
}

func (r *CreateRequest) Normalize() {
	if r == nil {
		return
	}
	r.Title = strings.TrimSpace(r.Title)
	r.Description = strings.TrimSpace(r.Description)
	r.Benefits = strings.TrimSpace(r.Benefits)
	r.RequiredDocuments = platformstrings.DedupeFold(r.RequiredDocuments)
	r.Eligibility = platformstrings.DedupeAndTrim(r.Eligibility)
	r.ID = strings.TrimSpace(r.ID)
	if r.ID == "" {
		r.ID = Slugify(r.Title)
	}
	if r.Status == "" {
		r.Status = StatusUpcoming
	}
}

// Validate parses the id; the remaining checks run on the built scheme.
func (r *CreateRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if _, err := id.ParseSchemeID(r.ID); err != nil {
		return dErrors.New(dErrors.CodeValidation, "invalid scheme id").WithDetail("fields", []string{"id"})
	}
	return nil
}

// Build turns the request into a scheme stamped with now.
func (r *CreateRequest) Build(now time.Time) (*Scheme, error) {
	schemeID, err := id.ParseSchemeID(r.ID)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, "invalid scheme id").WithDetail("fields", []string{"id"})
	}
	s := &Scheme{
		ID:                schemeID,
		Title:             r.Title,
		Description:       r.Description,
		RequiredDocuments: r.RequiredDocuments,
		Eligibility:       r.Eligibility,
		Benefits:          r.Benefits,
		StartDate:         r.StartDate,
		EndDate:           r.EndDate,
		Status:            r.Status,
		Fee:               r.Fee,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if s.Eligibility == nil {
		s.Eligibility = []string{}
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// UpdateRequest changes only the fields that are present.
type UpdateRequest struct {
	Title             *string          `json:"title,omitempty"`
	Description       *string          `json:"description,omitempty"`
	RequiredDocuments *[]string        `json:"required_documents,omitempty"`
	Eligibility       *[]string        `json:"eligibility,omitempty"`
	Benefits          *string          `json:"benefits,omitempty"`
	StartDate         *Date            `json:"start_date,omitempty"`
	EndDate           *Date            `json:"end_date,omitempty"`
	Status            *Status          `json:"status,omitempty"`
	Fee               *decimal.Decimal `json:"fee,omitempty"`
}

func (r *UpdateRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if r.Title == nil && r.Description == nil && r.RequiredDocuments == nil && r.Eligibility == nil &&
		r.Benefits == nil && r.StartDate == nil && r.EndDate == nil && r.Status == nil && r.Fee == nil {
		return dErrors.New(dErrors.CodeValidation, "no fields to update")
	}
	return nil
}

// Apply mutates s and returns the names of the changed fields.
func (r *UpdateRequest) Apply(s *Scheme, now time.Time) ([]string, error) {
	var changed []string
	if r.Title != nil {
		s.Title = strings.TrimSpace(*r.Title)
		changed = append(changed, "title")
	}
	if r.Description != nil {
		s.Description = strings.TrimSpace(*r.Description)
		changed = append(changed, "description")
	}
	if r.RequiredDocuments != nil {
		s.RequiredDocuments = platformstrings.DedupeFold(*r.RequiredDocuments)
		changed = append(changed, "required_documents")
	}
	if r.Eligibility != nil {
		s.Eligibility = platformstrings.DedupeAndTrim(*r.Eligibility)
		changed = append(changed, "eligibility")
	}
	if r.Benefits != nil {
		s.Benefits = strings.TrimSpace(*r.Benefits)
		changed = append(changed, "benefits")
	}
	if r.StartDate != nil {
		s.StartDate = *r.StartDate
		changed = append(changed, "start_date")
	}
	if r.EndDate != nil {
		s.EndDate = *r.EndDate
		changed = append(changed, "end_date")
	}
	if r.Status != nil {
		s.Status = *r.Status
		changed = append(changed, "status")
	}
	if r.Fee != nil {
		fee := *r.Fee
		s.Fee = &fee
		changed = append(changed, "fee")
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	s.UpdatedAt = now
	return changed, nil
}

// Slugify derives a scheme id from a title, e.g. "Education Support" -> "education-support".
func Slugify(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(title) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimSuffix(b.String(), "-")
	if len(slug) > maxSlugLength {
		slug = strings.TrimSuffix(slug[:maxSlugLength], "-")
	}
	return slug
}

const maxSlugLength = 64
