// Package models holds the account types for citizens and administrators.
package models

import (
	"net/mail"
	"regexp"
	"strings"
	"time"

	id "aidledger/pkg/domain"
	dErrors "aidledger/pkg/domain-errors"
)

var (
	phonePattern   = regexp.MustCompile(`^\+?[0-9]{10,15}$`)
	aadhaarPattern = regexp.MustCompile(`^[0-9]{12}$`)
)

const minPasswordLength = 6

// User is a registered account. PasswordHash is a bcrypt hash and never leaves
// the service.
type User struct {
	ID             id.UserID `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Phone          string    `json:"phone"`
	AadhaarID      string    `json:"aadhaar_id,omitempty"`
	Address        string    `json:"address,omitempty"`
	AdditionalInfo string    `json:"additional_info,omitempty"`
	Role           id.Role   `json:"role"`
	PasswordHash   []byte    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Clone returns a copy that shares no mutable state with u.
func (u *User) Clone() *User {
	c := *u
	c.PasswordHash = append([]byte(nil), u.PasswordHash...)
	return &c
}

// RegisterRequest is the citizen sign-up payload.
type RegisterRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Phone           string `json:"phone"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	AadhaarID       string `json:"aadhaar_id,omitempty"`
}

// Normalize trims whitespace and lowercases the email.
func (r *RegisterRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Phone = strings.ReplaceAll(strings.TrimSpace(r.Phone), " ", "")
	r.AadhaarID = strings.ReplaceAll(strings.TrimSpace(r.AadhaarID), " ", "")
}

// Validate reports every invalid field at once.
func (r *RegisterRequest) Validate() error {
	var invalid []string
	if _, err := mail.ParseAddress(r.Email); err != nil || r.Email == "" {
		invalid = append(invalid, "email")
	}
	if !phonePattern.MatchString(r.Phone) {
		invalid = append(invalid, "phone")
	}
	if len(r.Password) < minPasswordLength {
		invalid = append(invalid, "password")
	}
	if r.ConfirmPassword != "" && r.ConfirmPassword != r.Password {
		invalid = append(invalid, "confirm_password")
	}
	if r.AadhaarID != "" && !aadhaarPattern.MatchString(r.AadhaarID) {
		invalid = append(invalid, "aadhaar_id")
	}
	if len(invalid) > 0 {
		return dErrors.New(dErrors.CodeValidation, "invalid registration").WithDetail("fields", invalid)
	}
	return nil
}

// UpdateProfileRequest is a partial profile update. Nil fields are left alone.
type UpdateProfileRequest struct {
	Name           *string `json:"name,omitempty"`
	Email          *string `json:"email,omitempty"`
	Phone          *string `json:"phone,omitempty"`
	Address        *string `json:"address,omitempty"`
	AdditionalInfo *string `json:"additional_info,omitempty"`
}

func (r *UpdateProfileRequest) Normalize() {
	if r == nil {
		return
	}
	trim := func(p *string, fn func(string) string) {
		if p != nil {
			*p = fn(strings.TrimSpace(*p))
		}
	}
	keep := func(s string) string { return s }
	trim(r.Name, keep)
	trim(r.Email, strings.ToLower)
	trim(r.Phone, func(s string) string { return strings.ReplaceAll(s, " ", "") })
	trim(r.Address, keep)
	trim(r.AdditionalInfo, keep)
}

func (r *UpdateProfileRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if r.Name == nil && r.Email == nil && r.Phone == nil && r.Address == nil && r.AdditionalInfo == nil {
		return dErrors.New(dErrors.CodeValidation, "no fields to update")
	}
	var invalid []string
	if r.Name != nil && *r.Name == "" {
		invalid = append(invalid, "name")
	}
	if r.Email != nil {
		if _, err := mail.ParseAddress(*r.Email); err != nil || *r.Email == "" {
			invalid = append(invalid, "email")
		}
	}
	if r.Phone != nil && !phonePattern.MatchString(*r.Phone) {
		invalid = append(invalid, "phone")
	}
	if len(invalid) > 0 {
		return dErrors.New(dErrors.CodeValidation, "invalid profile").WithDetail("fields", invalid)
	}
	return nil
}

// Apply writes the requested values onto u and returns the fields whose
// value actually changed, in declaration order.
func (r *UpdateProfileRequest) Apply(u *User) []string {
	var changed []string
	set := func(field string, dst *string, src *string) {
		if src != nil && *src != *dst {
			*dst = *src
			changed = append(changed, field)
		}
	}
	set("name", &u.Name, r.Name)
	set("email", &u.Email, r.Email)
	set("phone", &u.Phone, r.Phone)
	set("address", &u.Address, r.Address)
	set("additional_info", &u.AdditionalInfo, r.AdditionalInfo)
	return changed
}

// LoginRequest is shared by citizen and admin logins.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r *LoginRequest) Normalize() {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
}

func (r *LoginRequest) Validate() error {
	if r.Email == "" || r.Password == "" {
		return dErrors.New(dErrors.CodeValidation, "email and password are required")
	}
	return nil
}

// LoginResult is returned after a successful login.
type LoginResult struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        *User     `json:"user"`
}
