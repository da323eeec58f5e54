// Package rules loads and validates redaction rule configuration.
//
// Rules are configuration: they are read once at process start, validated,
// and compiled into an immutable redact.Redactor shared by all requests.
// The JSON form is an array of objects:
//
//	[
//	  {"match_text": "Connection refused", "replacement": "Service unavailable"},
//	  {"match_pattern": "User '(.+)' not found", "replacement": "Unknown user: $1"}
//	]
//
// Sources:
//   - LoadFile / Decode / Parse: JSON from a file, reader, or bytes
//   - Redis: a shared list of JSON-encoded rules for multi-instance deployments
package rules

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/nhalm/chiredact/redact"
)

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		if name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]; name != "" && name != "-" {
			return name
		}
		return fld.Name
	})

	if err := validate.RegisterValidation("regexp", func(fl validator.FieldLevel) bool {
		_, err := regexp.Compile(fl.Field().String())
		return err == nil
	}); err != nil {
		panic(err)
	}
}

// ErrInvalidRule is returned (wrapped) when a rule fails validation.
var ErrInvalidRule = errors.New("invalid redaction rule")

// Parse decodes a JSON array of rules and validates it.
func Parse(data []byte) ([]redact.Rule, error) {
	return Decode(bytes.NewReader(data))
}

// Decode reads a JSON array of rules from r and validates it.
// Unknown fields are rejected so that typos in configuration surface at startup.
func Decode(r io.Reader) ([]redact.Rule, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var list []redact.Rule
	if err := dec.Decode(&list); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}

	if err := Validate(list); err != nil {
		return nil, err
	}
	return list, nil
}

// LoadFile reads and validates rules from a JSON file.
func LoadFile(path string) ([]redact.Rule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open rules file: %w", err)
	}
	defer f.Close()

	list, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return list, nil
}

// Validate checks the shape of every rule. A rule needs match_text or
// match_pattern, and match_pattern must be a valid regular expression.
// All invalid rules are reported, each error naming the rule index.
func Validate(list []redact.Rule) error {
	var errs []error
	for i := range list {
		if err := validateRule(list[i]); err != nil {
			errs = append(errs, fmt.Errorf("rule %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

func validateRule(rule redact.Rule) error {
	err := validate.Struct(rule)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fe.Field()+" "+formatTag(fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrInvalidRule, strings.Join(msgs, ", "))
}

func formatTag(tag string) string {
	switch tag {
	case "required_without":
		return "is required when match_pattern is empty"
	case "regexp":
		return "must be a valid regular expression"
	default:
		return "failed " + tag
	}
}

// Compile validates rules and builds a Redactor from them.
func Compile(list []redact.Rule) (*redact.Redactor, error) {
	if err := Validate(list); err != nil {
		return nil, err
	}
	return redact.New(list), nil
}
