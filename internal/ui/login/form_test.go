package login

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateEmail(t *testing.T) {
	assert.NoError(t, validateEmail("me@example.com"))
	assert.NoError(t, validateEmail("  me@example.com "))
	assert.EqualError(t, validateEmail(""), "Email is required")
	assert.EqualError(t, validateEmail("not-an-address"), "not an email address")
}

func TestValidateRequired(t *testing.T) {
	check := validateRequired("Password")
	assert.NoError(t, check("hunter2"))
	assert.EqualError(t, check("   "), "Password is required")
}

func TestNewForm(t *testing.T) {
	var v Values
	assert.NotNil(t, NewForm(&v, ""))
	assert.NotNil(t, NewForm(&v, "gemini"))
}
