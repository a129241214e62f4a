package common

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// ValidationError represents validation failures
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field '%s' with value '%v': %s", e.Field, e.Value, e.Message)
}

var structValidator = validator.New(validator.WithRequiredStructEnabled())

// ValidateStruct runs the `validate` struct tags on s and returns ErrValidation wrapped
// with one message per failing field.
func ValidateStruct(s interface{}) error {
	err := structValidator.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		messages = append(messages, ValidationError{
			Field:   fe.Field(),
			Value:   fe.Value(),
			Message: ruleMessage(fe),
		}.Error())
	}
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(messages, "; "))
}

func ruleMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "uuid", "uuid4":
		return "must be a valid UUID"
	case "url", "http_url":
		return "must be a valid URL"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	default:
		return "failed rule " + fe.Tag()
	}
}

// ParseID validates a document id taken from a URL path.
func ParseID(raw string) (string, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", NewAppError("INVALID_ID", "id is required", ErrInvalidInput)
	}
	if _, err := uuid.Parse(id); err != nil {
		return "", NewAppError("INVALID_ID", "id must be a UUID", ErrInvalidInput)
	}
	return id, nil
}
