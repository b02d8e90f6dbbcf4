package utils

import (
	"strings"
	"unicode"

	"Renju/protocol"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type credentials struct {
	Username string `validate:"required,min=3,max=32"`
	Password string `validate:"required,min=4,max=128"`
}

// ValidateCredentials checks signup input. Usernames are 3-32 characters
// with no whitespace; they are immutable and reserved forever, so the rules
// are strict up front.
func ValidateCredentials(username, password string) error {
	c := credentials{Username: username, Password: password}
	if err := validate.StructPartial(c, "Username"); err != nil {
		return protocol.NewError(protocol.CodeInvalidUsername, "username must be 3-32 characters")
	}
	if strings.ContainsFunc(username, unicode.IsSpace) {
		return protocol.NewError(protocol.CodeInvalidUsername, "username must not contain whitespace")
	}
	if err := validate.StructPartial(c, "Password"); err != nil {
		return protocol.NewError(protocol.CodeInvalidCredentials, "password must be 4-128 characters")
	}
	return nil
}
