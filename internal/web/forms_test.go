package web

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_LoginForm(t *testing.T) {
	for _, tc := range []struct {
		form    LoginForm
		field   string
		message string
	}{
		{LoginForm{Password: "x"}, "Email", "Email is required"},
		{LoginForm{Email: "not-an-email", Password: "x"}, "Email", "Please enter a valid email address"},
		{LoginForm{Email: "a@example.com"}, "Password", "Password is required"},
	} {
		err := Validate(tc.form)
		validationErr := &ValidationError{}
		require.True(t, errors.As(err, &validationErr), tc.message)
		assert.Equal(t, tc.field, validationErr.Field)
		assert.Equal(t, tc.message, validationErr.Message)
	}

	assert.NoError(t, Validate(LoginForm{Email: "a@example.com", Password: "x"}))
}

func TestValidateRegister(t *testing.T) {
	valid := RegisterForm{
		Email:           "a@example.com",
		Username:        "alice",
		Password:        "secret1",
		ConfirmPassword: "secret1",
	}
	require.NoError(t, ValidateRegister(valid, false))

	short := valid
	short.Password, short.ConfirmPassword = "12345", "12345"
	assert.EqualError(t, ValidateRegister(short, false), "Password must be at least 6 characters")

	exactlyMin := valid
	exactlyMin.Password, exactlyMin.ConfirmPassword = "123456", "123456"
	assert.NoError(t, ValidateRegister(exactlyMin, false))

	mismatch := valid
	mismatch.ConfirmPassword = "secret2"
	assert.EqualError(t, ValidateRegister(mismatch, false), "Passwords do not match")

	noUsername := valid
	noUsername.Username = ""
	assert.EqualError(t, ValidateRegister(noUsername, false), "Username is required")

	assert.EqualError(t, ValidateRegister(valid, true), "Registration code is required")
	withCode := valid
	withCode.Code = "letmein"
	assert.NoError(t, ValidateRegister(withCode, true))
}

func TestValidate_PostAndCommentForms(t *testing.T) {
	assert.EqualError(t, Validate(PostForm{Content: "c"}), "Title is required")
	assert.EqualError(t, Validate(PostForm{Title: "t"}), "Content is required")
	assert.EqualError(t, Validate(PostForm{Title: "t", Content: "c", Status: "archived"}), "Status must be draft or published")
	assert.NoError(t, Validate(PostForm{Title: "t", Content: "c"}))
	assert.NoError(t, Validate(PostForm{Title: "t", Content: "c", Status: "published"}))

	assert.EqualError(t, Validate(GuestCommentForm{GuestEmail: "g@example.com", Content: "c"}), "Name is required")
	assert.EqualError(t, Validate(GuestCommentForm{GuestName: "g", GuestEmail: "nope", Content: "c"}), "Please enter a valid email address")
	assert.EqualError(t, Validate(CommentForm{}), "Content is required")
}

func TestSplitTags(t *testing.T) {
	assert.Equal(t, []string{"go", "web"}, SplitTags("go, web,,Go "))
	assert.Equal(t, []string{}, SplitTags(""))
	assert.Equal(t, []string{"Go"}, SplitTags(" Go ,go,GO"))
}
