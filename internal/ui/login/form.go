// Package login asks for a user's mailbox login and, when the provider
// needs one, its API key.
package login

import (
	"fmt"
	"net/mail"
	"strings"

	"github.com/charmbracelet/huh"
)

// Values holds what the form collects.
type Values struct {
	Username string
	Password string
	APIKey   string
}

// NewForm builds the login form bound to v. The API key field is shown
// only when provider is not empty.
func NewForm(v *Values, provider string) *huh.Form {
	fields := []huh.Field{
		huh.NewInput().
			Title("Email").
			Description("IMAP login, usually the full address").
			Placeholder("user@example.com").
			Value(&v.Username).
			Validate(validateEmail),
		huh.NewInput().
			Title("Password").
			Description("Account password or app password").
			EchoMode(huh.EchoModePassword).
			Value(&v.Password).
			Validate(validateRequired("Password")),
	}
	if provider != "" {
		fields = append(fields, huh.NewInput().
			Title(fmt.Sprintf("%s API key", provider)).
			Description("Leave empty to keep the stored key").
			EchoMode(huh.EchoModePassword).
			Value(&v.APIKey))
	}

	return huh.NewForm(huh.NewGroup(fields...)).WithWidth(60)
}

// Prompt runs the form in the terminal.
func Prompt(provider string) (Values, error) {
	var v Values
	if err := NewForm(&v, provider).Run(); err != nil {
		return Values{}, err
	}
	v.Username = strings.TrimSpace(v.Username)
	v.APIKey = strings.TrimSpace(v.APIKey)
	return v, nil
}

func validateRequired(fieldName string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}
}

func validateEmail(s string) error {
	if err := validateRequired("Email")(s); err != nil {
		return err
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(s)); err != nil {
		return fmt.Errorf("not an email address")
	}
	return nil
}
