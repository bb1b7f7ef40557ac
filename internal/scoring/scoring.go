// Package scoring assigns eligibility scores to newly submitted applications.
//
// Scores are integers in [MinScore, MaxScore]. The admin queue ranks by them
// but nothing else depends on their distribution, so scorers are swappable.
package scoring

import (
	"context"
	"math/rand"
	"sync"

	id "aidledger/pkg/domain"
	dErrors "aidledger/pkg/domain-errors"
)

const (
	MinScore = 0
	MaxScore = 100
)

// Input is what a scorer sees about an application.
type Input struct {
	ApplicationID  id.ApplicationID
	SchemeID       id.SchemeID
	ApplicantID    id.UserID
	DocumentCount  int
	AdditionalInfo string
}

// InRange reports whether score is a valid eligibility score.
func InRange(score int) bool {
	return score >= MinScore && score <= MaxScore
}

// Fixed returns the same score for every application. Tests and demos use it.
type Fixed int

func (f Fixed) Score(context.Context, Input) (int, error) {
	return int(f), nil
}

// Random draws a uniform score. It stands in for a real eligibility model.
type Random struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewRandom(seed int64) *Random {
	return &Random{rng: rand.New(rand.NewSource(seed))}
}

func (r *Random) Score(ctx context.Context, _ Input) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "scoring cancelled")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return MinScore + r.rng.Intn(MaxScore-MinScore+1), nil
}

// Func adapts a function to a scorer.
type Func func(ctx context.Context, in Input) (int, error)

func (f Func) Score(ctx context.Context, in Input) (int, error) {
	return f(ctx, in)
}
