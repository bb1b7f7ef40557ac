package payment

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "aidledger/pkg/domain-errors"
	"aidledger/pkg/requestcontext"
)

func validCard() *CardDetails {
	return &CardDetails{Number: "4111 1111 1111 1234", Expiry: "12/28", CVV: "123", Holder: "Asha Devi"}
}

func TestQuoteDefaultSchedule(t *testing.T) {
	b := Quote()
	assert.True(t, b.Base.Equal(decimal.RequireFromString("500.00")), b.Base.String())
	assert.True(t, b.Convenience.Equal(decimal.RequireFromString("12.50")), b.Convenience.String())
	assert.True(t, b.Tax.Equal(decimal.RequireFromString("2.80")), b.Tax.String())
	assert.True(t, b.Total.Equal(decimal.RequireFromString("515.30")), b.Total.String())
	assert.True(t, b.Balanced())
}

func TestValidateListsFields(t *testing.T) {
	tests := []struct {
		name   string
		req    Request
		fields []string
	}{
		{"card missing everything", Request{Method: MethodCard}, []string{"card.number", "card.expiry", "card.cvv", "card.holder"}},
		{"card letters in number", Request{Method: MethodCard, Card: &CardDetails{Number: "4111-abcd", Expiry: "1/28", CVV: "1", Holder: "x"}}, []string{"card.number"}},
		{"upi missing id", Request{Method: MethodUPI}, []string{"upi_id"}},
		{"netbanking unknown bank", Request{Method: MethodNetbanking, Bank: "fakebank"}, []string{"bank"}},
		{"unknown method", Request{Method: "cash"}, []string{"method"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			require.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
			de, _ := dErrors.As(err)
			assert.Equal(t, tt.fields, de.Details["fields"])
		})
	}
}

func TestValidateAcceptsEachMethod(t *testing.T) {
	assert.NoError(t, (&Request{Method: MethodCard, Card: validCard()}).Validate())
	assert.NoError(t, (&Request{Method: MethodUPI, UPIID: "asha@upi"}).Validate())
	for _, bank := range Banks {
		assert.NoError(t, (&Request{Method: MethodNetbanking, Bank: bank}).Validate())
	}
}

func TestChargeKeepsOnlyLastFourDigits(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), now)
	p := NewProcessor(WithTransactionIDs(func() string { return "TXN01TEST" }))

	rec, err := p.Charge(ctx, &Request{Method: "CARD", Card: validCard()})
	require.NoError(t, err)
	assert.Equal(t, "TXN01TEST", rec.TransactionID)
	assert.Equal(t, MethodCard, rec.Method)
	assert.Equal(t, "**** **** **** 1234", rec.MethodReference)
	assert.Equal(t, now, rec.CompletedAt)

	raw, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(raw), "4111"))
}

func TestChargeGeneratesUniqueTransactionIDs(t *testing.T) {
	p := NewProcessor()
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		rec, err := p.Charge(context.Background(), &Request{Method: MethodUPI, UPIID: "a@upi"})
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(rec.TransactionID, "TXN"))
		assert.False(t, seen[rec.TransactionID])
		seen[rec.TransactionID] = true
	}
}

func TestChargeRejectsInvalidRequest(t *testing.T) {
	_, err := NewProcessor().Charge(context.Background(), &Request{Method: MethodNetbanking, Bank: "pnb"})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}
