package usecase

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	fullNamePattern = regexp.MustCompile(`^[a-zA-Z\s\-'.]+$`)
	phonePattern    = regexp.MustCompile(`^[0-9+\-\s()]+$`)
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func ValidateCreateLeadInput(input CreateLeadInput) []ValidationError {
	var errors []ValidationError

	name := strings.TrimSpace(input.FullName)
	if name == "" {
		errors = append(errors, ValidationError{"fullName", "is required"})
	} else if n := utf8.RuneCountInString(name); n < 2 {
		errors = append(errors, ValidationError{"fullName", "must have at least 2 characters"})
	} else if n > 255 {
		errors = append(errors, ValidationError{"fullName", "must not exceed 255 characters"})
	} else if !fullNamePattern.MatchString(name) {
		errors = append(errors, ValidationError{"fullName", "may only contain letters, spaces, hyphens, apostrophes and periods"})
	}

	phone := strings.TrimSpace(input.Phone)
	if phone == "" {
		errors = append(errors, ValidationError{"phone", "is required"})
	} else if n := len(phone); n < 10 || n > 50 {
		errors = append(errors, ValidationError{"phone", "must be between 10 and 50 characters"})
	} else if !phonePattern.MatchString(phone) {
		errors = append(errors, ValidationError{"phone", "must be a valid phone number"})
	}

	email := strings.TrimSpace(input.Email)
	if email == "" {
		errors = append(errors, ValidationError{"email", "is required"})
	} else if len(email) > 255 {
		errors = append(errors, ValidationError{"email", "must not exceed 255 characters"})
	} else if !isValidEmail(email) {
		errors = append(errors, ValidationError{"email", "is invalid"})
	}

	class := strings.TrimSpace(input.PreferredClass)
	if class == "" {
		errors = append(errors, ValidationError{"preferredClass", "is required"})
	} else if utf8.RuneCountInString(class) > 255 {
		errors = append(errors, ValidationError{"preferredClass", "must not exceed 255 characters"})
	}

	return errors
}

// isValidEmail accepts a bare address only, not the "Name <addr>" form.
func isValidEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}
