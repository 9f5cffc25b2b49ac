// Package validation implements full and partial validation of field maps
// against a JSON-Schema-shaped intake definition. The validator is pure: no
// I/O, no clock, deterministic output order per schema walk.
package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/amitpaz1/formbridge-sub001/internal/domain"
	apperrors "github.com/amitpaz1/formbridge-sub001/internal/pkg/errors"
)

// Stable validation error codes, carried in FieldError.Type.
const (
	CodeRequired      = "required"
	CodeInvalidType   = "invalid_type"
	CodeInvalidFormat = "invalid_format"
	CodeInvalidValue  = "invalid_value"
	CodeTooLong       = "too_long"
	CodeTooShort      = "too_short"
	CodeFileRequired  = "file_required"
	CodeFileTooLarge  = "file_too_large"
	CodeFileWrongType = "file_wrong_type"
	CodeCustom        = "custom"
)

// patternCache holds compiled regexes keyed by pattern string, shared across
// schemas that spell the same pattern.
var patternCache sync.Map // string → *regexp.Regexp

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Validate runs full validation: every required field must be present and
// every present field must satisfy its constraints.
func Validate(schema *domain.FieldSchema, values map[string]any) []apperrors.FieldError {
	return validateObject(schema, values, "", true)
}

// ValidatePartial treats all fields as optional but still enforces per-field
// constraints on the fields that are present.
func ValidatePartial(schema *domain.FieldSchema, values map[string]any) []apperrors.FieldError {
	return validateObject(schema, values, "", false)
}

func validateObject(schema *domain.FieldSchema, values map[string]any, prefix string, full bool) []apperrors.FieldError {
	if schema == nil {
		return nil
	}
	var errs []apperrors.FieldError

	if full {
		for _, name := range schema.Required {
			if _, present := values[name]; present {
				continue
			}
			code := CodeRequired
			msg := "required field missing"
			if fs, ok := schema.Properties[name]; ok && fs.Type == "file" {
				code = CodeFileRequired
				msg = "required file missing"
			}
			errs = append(errs, apperrors.FieldError{Field: joinPath(prefix, name), Message: msg, Type: code})
		}
	}

	for name, fs := range schema.Properties {
		value, present := values[name]
		if !present {
			continue
		}
		errs = append(errs, validateValue(fs, value, joinPath(prefix, name), full)...)
	}
	return errs
}

func validateValue(fs *domain.FieldSchema, value any, path string, full bool) []apperrors.FieldError {
	if fs == nil || value == nil {
		return nil
	}
	switch fs.Type {
	case "string":
		return validateString(fs, value, path)
	case "number", "integer":
		return validateNumber(fs, value, path)
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fieldErr(path, "must be a boolean", CodeInvalidType)
		}
		return nil
	case "object":
		nested, ok := value.(map[string]any)
		if !ok {
			return fieldErr(path, "must be an object", CodeInvalidType)
		}
		return validateObject(fs, nested, path, full)
	case "array":
		return validateArray(fs, value, path, full)
	case "file":
		return validateFile(fs, value, path)
	default:
		// Unknown declared type: accept the value. Schema normalization
		// upstream is responsible for type vocabulary.
		return nil
	}
}

func validateString(fs *domain.FieldSchema, value any, path string) []apperrors.FieldError {
	s, ok := value.(string)
	if !ok {
		return fieldErr(path, "must be a string", CodeInvalidType)
	}
	var errs []apperrors.FieldError
	if fs.MinLength != nil && len(s) < *fs.MinLength {
		errs = append(errs, apperrors.FieldError{Field: path, Message: fmt.Sprintf("must be at least %d characters", *fs.MinLength), Type: CodeTooShort})
	}
	if fs.MaxLength != nil && len(s) > *fs.MaxLength {
		errs = append(errs, apperrors.FieldError{Field: path, Message: fmt.Sprintf("must be at most %d characters", *fs.MaxLength), Type: CodeTooLong})
	}
	if fs.Pattern != "" {
		re, err := compiledPattern(fs.Pattern)
		if err != nil {
			errs = append(errs, apperrors.FieldError{Field: path, Message: "schema pattern is invalid", Type: CodeCustom})
		} else if !re.MatchString(s) {
			errs = append(errs, apperrors.FieldError{Field: path, Message: fmt.Sprintf("must match pattern %s", fs.Pattern), Type: CodeInvalidFormat})
		}
	}
	if fs.Format != "" && !matchesFormat(fs.Format, s) {
		errs = append(errs, apperrors.FieldError{Field: path, Message: fmt.Sprintf("must be a valid %s", fs.Format), Type: CodeInvalidFormat})
	}
	if len(fs.Enum) > 0 && !enumContains(fs.Enum, s) {
		errs = append(errs, apperrors.FieldError{Field: path, Message: "must be one of the allowed values", Type: CodeInvalidValue})
	}
	return errs
}

func validateNumber(fs *domain.FieldSchema, value any, path string) []apperrors.FieldError {
	n, ok := toFloat(value)
	if !ok {
		return fieldErr(path, "must be a number", CodeInvalidType)
	}
	if fs.Type == "integer" && n != float64(int64(n)) {
		return fieldErr(path, "must be an integer", CodeInvalidType)
	}
	var errs []apperrors.FieldError
	if fs.Minimum != nil && n < *fs.Minimum {
		errs = append(errs, apperrors.FieldError{Field: path, Message: fmt.Sprintf("must be >= %v", *fs.Minimum), Type: CodeInvalidValue})
	}
	if fs.Maximum != nil && n > *fs.Maximum {
		errs = append(errs, apperrors.FieldError{Field: path, Message: fmt.Sprintf("must be <= %v", *fs.Maximum), Type: CodeInvalidValue})
	}
	if len(fs.Enum) > 0 && !enumContains(fs.Enum, n) {
		errs = append(errs, apperrors.FieldError{Field: path, Message: "must be one of the allowed values", Type: CodeInvalidValue})
	}
	return errs
}

func validateArray(fs *domain.FieldSchema, value any, path string, full bool) []apperrors.FieldError {
	items, ok := value.([]any)
	if !ok {
		return fieldErr(path, "must be an array", CodeInvalidType)
	}
	var errs []apperrors.FieldError
	if fs.MinItems != nil && len(items) < *fs.MinItems {
		errs = append(errs, apperrors.FieldError{Field: path, Message: fmt.Sprintf("must have at least %d items", *fs.MinItems), Type: CodeTooShort})
	}
	if fs.MaxItems != nil && len(items) > *fs.MaxItems {
		errs = append(errs, apperrors.FieldError{Field: path, Message: fmt.Sprintf("must have at most %d items", *fs.MaxItems), Type: CodeTooLong})
	}
	if fs.Items != nil {
		for i, item := range items {
			errs = append(errs, validateValue(fs.Items, item, fmt.Sprintf("%s[%d]", path, i), full)...)
		}
	}
	return errs
}

// validateFile checks an upload reference against the field's file
// constraints. The reference is either an upload ID string or an object
// shaped like {filename, mimeType, sizeBytes}.
func validateFile(fs *domain.FieldSchema, value any, path string) []apperrors.FieldError {
	switch v := value.(type) {
	case string:
		if v == "" {
			return fieldErr(path, "required file missing", CodeFileRequired)
		}
		return nil
	case map[string]any:
		var errs []apperrors.FieldError
		if size, ok := toFloat(v["sizeBytes"]); ok && fs.MaxSize > 0 && int64(size) > fs.MaxSize {
			errs = append(errs, apperrors.FieldError{Field: path, Message: fmt.Sprintf("file exceeds %d bytes", fs.MaxSize), Type: CodeFileTooLarge})
		}
		if mime, ok := v["mimeType"].(string); ok && len(fs.AllowedTypes) > 0 && !containsString(fs.AllowedTypes, mime) {
			errs = append(errs, apperrors.FieldError{Field: path, Message: "file type is not allowed", Type: CodeFileWrongType})
		}
		return errs
	default:
		return fieldErr(path, "must be a file reference", CodeInvalidType)
	}
}

func matchesFormat(format, s string) bool {
	switch format {
	case "email":
		return emailPattern.MatchString(s)
	case "uri":
		u, err := url.Parse(s)
		return err == nil && u.Scheme != "" && u.Host != ""
	case "date":
		_, err := time.Parse("2006-01-02", s)
		return err == nil
	case "date-time":
		_, err := time.Parse(time.RFC3339, s)
		return err == nil
	case "uuid":
		_, err := uuid.Parse(s)
		return err == nil
	default:
		// Unknown formats pass; the schema normalizer owns the vocabulary.
		return true
	}
}

func compiledPattern(pattern string) (*regexp.Regexp, error) {
	if cached, ok := patternCache.Load(pattern); ok {
		return cached.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	patternCache.Store(pattern, re)
	return re, nil
}

func enumContains(enum []any, value any) bool {
	vf, vIsNum := toFloat(value)
	for _, e := range enum {
		if e == value {
			return true
		}
		if ef, ok := toFloat(e); ok && vIsNum && ef == vf {
			return true
		}
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func fieldErr(path, message, code string) []apperrors.FieldError {
	return []apperrors.FieldError{{Field: path, Message: message, Type: code}}
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}
