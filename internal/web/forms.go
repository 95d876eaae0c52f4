package web

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

const MinPasswordLength = 6

var formValidator = validator.New()

// ValidationError is a form input problem found before any API call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

type LoginForm struct {
	Email    string `form:"email" validate:"required,email"`
	Password string `form:"password" validate:"required"`
}

type RegisterForm struct {
	Email           string `form:"email" validate:"required,email"`
	Username        string `form:"username" validate:"required"`
	Password        string `form:"password" validate:"required,min=6"`
	ConfirmPassword string `form:"confirm_password" validate:"eqfield=Password"`
	Code            string `form:"code"`
}

type PostForm struct {
	Title         string `form:"title" validate:"required"`
	Content       string `form:"content" validate:"required"`
	Excerpt       string `form:"excerpt"`
	Tags          string `form:"tags"`
	Status        string `form:"status" validate:"omitempty,oneof=draft published"`
	FeaturedImage string `form:"featured_image"`
}

type GuestCommentForm struct {
	GuestName  string `form:"guest_name" validate:"required"`
	GuestEmail string `form:"guest_email" validate:"required,email"`
	Content    string `form:"content" validate:"required"`
}

type CommentForm struct {
	Content string `form:"content" validate:"required"`
}

var fieldMessages = map[string]string{
	"Email.required":           "Email is required",
	"Email.email":              "Please enter a valid email address",
	"Password.required":        "Password is required",
	"Password.min":             fmt.Sprintf("Password must be at least %d characters", MinPasswordLength),
	"ConfirmPassword.eqfield":  "Passwords do not match",
	"Username.required":        "Username is required",
	"Title.required":           "Title is required",
	"Content.required":         "Content is required",
	"Status.oneof":             "Status must be draft or published",
	"GuestName.required":       "Name is required",
	"GuestEmail.required":      "Email is required",
	"GuestEmail.email":         "Please enter a valid email address",
	"Code.required":            "Registration code is required",
	"ConfirmPassword.required": "Please confirm your password",
}

// Validate checks a form struct and returns the first problem as a
// *ValidationError, in field declaration order.
func Validate(form interface{}) error {
	err := formValidator.Struct(form)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &ValidationError{Message: "Invalid input"}
	}

	fe := fieldErrs[0]
	msg, ok := fieldMessages[fe.Field()+"."+fe.Tag()]
	if !ok {
		msg = fe.Field() + " is invalid"
	}
	return &ValidationError{Field: fe.Field(), Message: msg}
}

// ValidateRegister also requires the registration code when requireCode is
// set (admin registration).
func ValidateRegister(form RegisterForm, requireCode bool) error {
	if err := Validate(form); err != nil {
		return err
	}
	if requireCode && strings.TrimSpace(form.Code) == "" {
		return &ValidationError{Field: "Code", Message: fieldMessages["Code.required"]}
	}
	return nil
}

func trimmed(r *http.Request, key string) string {
	return strings.TrimSpace(r.PostFormValue(key))
}

func parseLoginForm(r *http.Request) LoginForm {
	return LoginForm{
		Email:    trimmed(r, "email"),
		Password: r.PostFormValue("password"),
	}
}

func parseRegisterForm(r *http.Request) RegisterForm {
	return RegisterForm{
		Email:           trimmed(r, "email"),
		Username:        trimmed(r, "username"),
		Password:        r.PostFormValue("password"),
		ConfirmPassword: r.PostFormValue("confirm_password"),
		Code:            trimmed(r, "code"),
	}
}

func parsePostForm(r *http.Request) PostForm {
	return PostForm{
		Title:         trimmed(r, "title"),
		Content:       strings.TrimSpace(r.PostFormValue("content")),
		Excerpt:       trimmed(r, "excerpt"),
		Tags:          trimmed(r, "tags"),
		Status:        trimmed(r, "status"),
		FeaturedImage: trimmed(r, "featured_image"),
	}
}

// SplitTags turns "go, web,,Go " into ["go", "web"]: trimmed, empty
// entries dropped, first spelling kept for case-insensitive duplicates.
func SplitTags(raw string) []string {
	tags := []string{}
	seen := map[string]bool{}
	for _, tag := range strings.Split(raw, ",") {
		tag = strings.TrimSpace(tag)
		key := strings.ToLower(tag)
		if tag == "" || seen[key] {
			continue
		}
		seen[key] = true
		tags = append(tags, tag)
	}
	return tags
}
