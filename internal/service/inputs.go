package service

import (
	"errors"
	"strings"
	"unicode"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

const (
	maxNameLength     = 50
	maxEmailLength    = 50
	minPasswordLength = 8
	maxPasswordLength = 50
)

type RegisterInput struct {
	Name                 string `json:"name"`
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

func (r RegisterInput) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.RuneLength(1, maxNameLength)),
		validation.Field(&r.Email, validation.Required, validation.RuneLength(1, maxEmailLength), is.Email),
		validation.Field(&r.Password, validation.Required, validation.RuneLength(minPasswordLength, maxPasswordLength)),
		validation.Field(
			&r.PasswordConfirmation,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RecoverPasswordInput struct {
	Email string `json:"email"`
}

func (r RecoverPasswordInput) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

type VerifyInput struct {
	Token string `json:"token"`
}

type ResetPasswordInput struct {
	Token                string `json:"token"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

func (r ResetPasswordInput) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Password, validation.Required, validation.RuneLength(minPasswordLength, maxPasswordLength)),
		validation.Field(
			&r.PasswordConfirmation,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

// ValidateStringEquals checks that both values match.
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}

// NormalizeEmail lowercases and drops every whitespace rune.
func NormalizeEmail(email string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, strings.ToLower(email))
}
