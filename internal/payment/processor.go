package payment

import (
	"context"

	"aidledger/pkg/ids"
	"aidledger/pkg/requestcontext"
)

const transactionPrefix = "TXN"

// Processor settles payments. Settlement is simulated: a valid request
// always succeeds.
type Processor struct {
	newTxnID func() string
}

type Option func(*Processor)

// WithTransactionIDs overrides transaction id generation.
func WithTransactionIDs(fn func() string) Option {
	return func(p *Processor) {
		p.newTxnID = fn
	}
}

func NewProcessor(opts ...Option) *Processor {
	p := &Processor{newTxnID: func() string { return ids.WithPrefix(transactionPrefix) }}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Charge validates req and returns a completed record priced by Quote.
func (p *Processor) Charge(ctx context.Context, req *Request) (*Record, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &Record{
		TransactionID:   p.newTxnID(),
		Method:          req.Method,
		Breakdown:       Quote(),
		MethodReference: req.reference(),
		CompletedAt:     requestcontext.Now(ctx),
	}, nil
}
