// Package inputval validates decoded request payloads.
//
// Payload structs carry `validate` tags (go-playground/validator) and a
// `label` tag naming the field in user-facing messages:
//
//	type createCohortInput struct {
//		Name string `json:"name" validate:"required,min=10,max=30" label:"Cohort name"`
//	}
//
// Beyond the built-in rules, three custom ones are registered: email (the
// stricter IsValidEmail), httpurl and objectid.
package inputval

import (
	"fmt"
	"net/mail"
	"net/url"
	"reflect"
	"strings"
	"sync"

	"github.com/dalemusser/cohorthub/internal/app/system/apperr"
	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	once     sync.Once
	validate *validator.Validate
)

func instance() *validator.Validate {
	once.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			if l := f.Tag.Get("label"); l != "" {
				return l
			}
			if j, _, _ := strings.Cut(f.Tag.Get("json"), ","); j != "" && j != "-" {
				return j
			}
			return f.Name
		})
		_ = v.RegisterValidation("email", func(fl validator.FieldLevel) bool {
			return IsValidEmail(fl.Field().String())
		})
		_ = v.RegisterValidation("httpurl", func(fl validator.FieldLevel) bool {
			return IsValidHTTPURL(fl.Field().String())
		})
		_ = v.RegisterValidation("objectid", func(fl validator.FieldLevel) bool {
			return IsValidObjectID(fl.Field().String())
		})
		validate = v
	})
	return validate
}

// FieldError is one failed rule.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Result collects validation failures in field order.
type Result struct {
	Errors []FieldError
}

// HasErrors reports whether any rule failed.
func (r *Result) HasErrors() bool { return len(r.Errors) > 0 }

// First returns the first message, or "".
func (r *Result) First() string {
	if len(r.Errors) == 0 {
		return ""
	}
	return r.Errors[0].Message
}

// All joins every message with "; ".
func (r *Result) All() string {
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = e.Message
	}
	return strings.Join(msgs, "; ")
}

// Err returns nil when valid, otherwise a Validation error whose details
// map each field to its message.
func (r *Result) Err() error {
	if !r.HasErrors() {
		return nil
	}
	fields := make(map[string]any, len(r.Errors))
	for _, e := range r.Errors {
		if _, seen := fields[e.Field]; !seen {
			fields[e.Field] = e.Message
		}
	}
	return apperr.New(apperr.Validation, r.First()).WithDetail("fields", fields)
}

// Validate checks s against its validate tags.
func Validate(s any) *Result {
	res := &Result{}
	err := instance().Struct(s)
	if err == nil {
		return res
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		res.Errors = append(res.Errors, FieldError{Message: err.Error()})
		return res
	}
	for _, fe := range verrs {
		res.Errors = append(res.Errors, FieldError{
			Field:   fe.Namespace(),
			Message: message(fe),
		})
	}
	return res
}

func message(fe validator.FieldError) string {
	label := fe.Field()
	isString := fe.Kind() == reflect.String
	isList := fe.Kind() == reflect.Slice || fe.Kind() == reflect.Array

	switch fe.Tag() {
	case "required":
		return label + " is required."
	case "email":
		return "A valid email address is required."
	case "httpurl":
		return label + " must be a valid http or https URL."
	case "objectid":
		return label + " must be a valid ID."
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s.", label, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "min", "gte":
		switch {
		case isString:
			return fmt.Sprintf("%s must be at least %s characters.", label, fe.Param())
		case isList:
			return fmt.Sprintf("%s must have at least %s entries.", label, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s.", label, fe.Param())
	case "max", "lte":
		switch {
		case isString:
			return fmt.Sprintf("%s must be at most %s characters.", label, fe.Param())
		case isList:
			return fmt.Sprintf("%s must have at most %s entries.", label, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s.", label, fe.Param())
	case "alphanum":
		return label + " may contain only letters and digits."
	}
	return label + " is invalid."
}

// IsValidEmail reports whether s is a bare address (no display name)
// with a well-formed local part and domain. Single-label domains are allowed.
func IsValidEmail(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || strings.ContainsAny(s, " \t<>") {
		return false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s || addr.Name != "" {
		return false
	}
	local, domain, ok := strings.Cut(s, "@")
	if !ok || local == "" || domain == "" {
		return false
	}
	for _, part := range []string{local, domain} {
		if strings.HasPrefix(part, ".") || strings.HasSuffix(part, ".") || strings.Contains(part, "..") {
			return false
		}
	}
	return true
}

// IsValidHTTPURL reports whether s is an absolute http(s) URL with a host.
func IsValidHTTPURL(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// IsValidObjectID reports whether s is a 24-character hex ObjectID.
func IsValidObjectID(s string) bool {
	return primitive.IsValidObjectID(strings.TrimSpace(s))
}
