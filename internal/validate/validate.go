// Package validate composes ordered per-field validation chains. Each rule
// may transform the value (trim, strip HTML) or reject it; rules run in the
// order they are declared and the first rejection per field wins.
package validate

import (
	"fmt"
	"regexp"
	"strings"

	passwordvalidator "github.com/wagslane/go-password-validator"

	"bytebits/internal/pkg/sanitize"
)

// FieldError is the wire shape of a single validation failure.
type FieldError struct {
	Msg      string `json:"msg"`
	Path     string `json:"path"`
	Location string `json:"location"`
}

// Rule transforms a value and/or rejects it with a message. An empty message
// means the value passed.
type Rule func(value string) (string, string)

type Field struct {
	Name  string
	Rules []Rule
}

var (
	emailPattern    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
)

// Run applies every field's chain against values and returns the cleaned
// values plus any failures. All fields are validated even after one fails.
func Run(values map[string]string, fields []Field) (map[string]string, []FieldError) {
	clean := make(map[string]string, len(values))
	for k, v := range values {
		clean[k] = v
	}

	var errs []FieldError
	for _, f := range fields {
		value := clean[f.Name]
		failed := false
		for _, rule := range f.Rules {
			next, msg := rule(value)
			if msg != "" {
				errs = append(errs, FieldError{Msg: msg, Path: f.Name, Location: "body"})
				failed = true
				break
			}
			value = next
		}
		if !failed {
			clean[f.Name] = value
		}
	}
	return clean, errs
}

func Trim() Rule {
	return func(v string) (string, string) {
		return strings.TrimSpace(v), ""
	}
}

func Required(msg string) Rule {
	return func(v string) (string, string) {
		if v == "" {
			return v, msg
		}
		return v, ""
	}
}

func MaxLen(n int, msg string) Rule {
	return func(v string) (string, string) {
		if len(v) > n {
			return v, msg
		}
		return v, ""
	}
}

func LengthBetween(min, max int, msg string) Rule {
	return func(v string) (string, string) {
		if len(v) < min || len(v) > max {
			return v, msg
		}
		return v, ""
	}
}

func Email(msg string) Rule {
	return func(v string) (string, string) {
		if !emailPattern.MatchString(v) {
			return v, msg
		}
		return v, ""
	}
}

// Username restricts to letters, numbers and underscores.
func Username(msg string) Rule {
	return func(v string) (string, string) {
		if !usernamePattern.MatchString(v) {
			return v, msg
		}
		return v, ""
	}
}

// StrongPassword gates on estimated entropy rather than raw length.
func StrongPassword(minEntropy int) Rule {
	return func(v string) (string, string) {
		if err := passwordvalidator.Validate(v, float64(minEntropy)); err != nil {
			return v, fmt.Sprintf("Password is too weak: %v.", err)
		}
		return v, ""
	}
}

// StripHTML sanitizes the value in place; it never rejects.
func StripHTML() Rule {
	return func(v string) (string, string) {
		return sanitize.Strip(v), ""
	}
}
