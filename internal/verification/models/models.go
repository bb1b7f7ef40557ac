// Package models defines contact channels and one-time code challenges.
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	id "aidledger/pkg/domain"
	dErrors "aidledger/pkg/domain-errors"
)

// Channel is a contact medium that must be verified before submitting applications.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelPhone Channel = "phone"
)

// Channels lists every channel an applicant must verify.
var Channels = []Channel{ChannelEmail, ChannelPhone}

func ParseChannel(s string) (Channel, error) {
	switch c := Channel(s); c {
	case ChannelEmail, ChannelPhone:
		return c, nil
	default:
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown verification channel %q", s)
	}
}

// MaxAttempts bounds wrong guesses per issued code.
const MaxAttempts = 5

// Challenge is an outstanding code for one user and channel. Destination is
// the address the code went to; verifying it confirms that address only.
type Challenge struct {
	UserID      id.UserID `json:"user_id"`
	Channel     Channel   `json:"channel"`
	Destination string    `json:"destination"`
	CodeHash    string    `json:"code_hash"`
	SentAt      time.Time `json:"sent_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Attempts    int       `json:"attempts"`
}

// HashCode returns the stored form of a code.
func HashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

func (c *Challenge) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// ResendAvailableAt is when a new code may be issued.
func (c *Challenge) ResendAvailableAt(cooldown time.Duration) time.Time {
	return c.SentAt.Add(cooldown)
}

// SendResult tells the client where the code went and when it may ask again.
type SendResult struct {
	Channel           Channel   `json:"channel"`
	Destination       string    `json:"destination"`
	ExpiresAt         time.Time `json:"expires_at"`
	ResendAvailableAt time.Time `json:"resend_available_at"`
}

// Status reports verification per channel.
type Status struct {
	Email bool `json:"email"`
	Phone bool `json:"phone"`
}

// VerifyRequest carries the code typed by the user.
type VerifyRequest struct {
	Code string `json:"code"`
}

func (r *VerifyRequest) Validate() error {
	if len(r.Code) != 6 {
		return dErrors.New(dErrors.CodeValidation, "code must be 6 digits").WithDetail("fields", []string{"code"})
	}
	for _, ch := range r.Code {
		if ch < '0' || ch > '9' {
			return dErrors.New(dErrors.CodeValidation, "code must be 6 digits").WithDetail("fields", []string{"code"})
		}
	}
	return nil
}
