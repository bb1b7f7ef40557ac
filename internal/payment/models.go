// Package payment validates application-fee payments and produces immutable
// payment records. Amounts are shopspring decimals so the breakdown always
// sums exactly.
package payment

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	dErrors "aidledger/pkg/domain-errors"
)

type Method string

const (
	MethodCard       Method = "card"
	MethodUPI        Method = "upi"
	MethodNetbanking Method = "netbanking"
)

func (m Method) IsValid() bool {
	switch m {
	case MethodCard, MethodUPI, MethodNetbanking:
		return true
	}
	return false
}

// Banks is the fixed set of netbanking codes accepted at checkout.
var Banks = []string{"sbi", "hdfc", "icici", "axis"}

func isKnownBank(code string) bool {
	for _, b := range Banks {
		if b == code {
			return true
		}
	}
	return false
}

type CardDetails struct {
	Number string `json:"number"`
	Expiry string `json:"expiry"`
	CVV    string `json:"cvv"`
	Holder string `json:"holder"`
}

// Request carries the details for one method. Fields for other methods are ignored.
type Request struct {
	Method Method       `json:"method"`
	Card   *CardDetails `json:"card,omitempty"`
	UPIID  string       `json:"upi_id,omitempty"`
	Bank   string       `json:"bank,omitempty"`
}

func (r *Request) Normalize() {
	if r == nil {
		return
	}
	r.Method = Method(strings.ToLower(strings.TrimSpace(string(r.Method))))
	r.UPIID = strings.TrimSpace(r.UPIID)
	r.Bank = strings.ToLower(strings.TrimSpace(r.Bank))
	if r.Card != nil {
		r.Card.Number = strings.TrimSpace(r.Card.Number)
		r.Card.Expiry = strings.TrimSpace(r.Card.Expiry)
		r.Card.CVV = strings.TrimSpace(r.Card.CVV)
		r.Card.Holder = strings.TrimSpace(r.Card.Holder)
	}
}

// Validate returns a validation error whose "fields" detail lists every
// missing or malformed field.
func (r *Request) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	var fields []string
	switch r.Method {
	case MethodCard:
		card := r.Card
		if card == nil {
			card = &CardDetails{}
		}
		if compact := cardSeparators.Replace(card.Number); compact == "" || cardDigits(compact) != compact {
			fields = append(fields, "card.number")
		}
		if card.Expiry == "" {
			fields = append(fields, "card.expiry")
		}
		if card.CVV == "" {
			fields = append(fields, "card.cvv")
		}
		if card.Holder == "" {
			fields = append(fields, "card.holder")
		}
	case MethodUPI:
		if r.UPIID == "" {
			fields = append(fields, "upi_id")
		}
	case MethodNetbanking:
		if !isKnownBank(r.Bank) {
			fields = append(fields, "bank")
		}
	default:
		fields = append(fields, "method")
	}
	if len(fields) > 0 {
		return dErrors.New(dErrors.CodeValidation, "invalid payment details").
			WithDetail("fields", fields).
			WithDetail("method", string(r.Method))
	}
	return nil
}

// reference is the non-sensitive identifier kept on the record.
func (r *Request) reference() string {
	switch r.Method {
	case MethodCard:
		return MaskCard(r.Card.Number)
	case MethodUPI:
		return r.UPIID
	case MethodNetbanking:
		return r.Bank
	}
	return ""
}

var cardSeparators = strings.NewReplacer(" ", "", "-", "")

func cardDigits(number string) string {
	var b strings.Builder
	for _, c := range number {
		if c >= '0' && c <= '9' {
			b.WriteRune(c)
		}
	}
	return b.String()
}

// MaskCard keeps only the last four digits of a card number.
func MaskCard(number string) string {
	digits := cardDigits(number)
	if len(digits) > 4 {
		digits = digits[len(digits)-4:]
	}
	return "**** **** **** " + digits
}

// Breakdown is the fee schedule charged for one application.
type Breakdown struct {
	Base        decimal.Decimal `json:"base"`
	Convenience decimal.Decimal `json:"convenience"`
	Tax         decimal.Decimal `json:"tax"`
	Total       decimal.Decimal `json:"total"`
}

var (
	DefaultBase        = decimal.RequireFromString("500.00")
	DefaultConvenience = decimal.RequireFromString("12.50")
	DefaultTax         = decimal.RequireFromString("2.80")
)

// Quote returns the fixed fee schedule. Every application is charged the
// same amounts regardless of scheme.
func Quote() Breakdown {
	return Breakdown{
		Base:        DefaultBase,
		Convenience: DefaultConvenience,
		Tax:         DefaultTax,
		Total:       DefaultBase.Add(DefaultConvenience).Add(DefaultTax),
	}
}

// Balanced reports whether Total equals the sum of its parts.
func (b Breakdown) Balanced() bool {
	return b.Base.Add(b.Convenience).Add(b.Tax).Equal(b.Total)
}

// Record is the completed payment attached to an application. It never
// holds a full card number.
type Record struct {
	TransactionID   string    `json:"transaction_id"`
	Method          Method    `json:"method"`
	Breakdown       Breakdown `json:"breakdown"`
	MethodReference string    `json:"method_reference"`
	CompletedAt     time.Time `json:"completed_at"`
	AuditHash       string    `json:"audit_hash,omitempty"`
}
