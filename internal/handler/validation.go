package handler

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/its333/NoStressPlanner-sub000/internal/apperr"
	"github.com/its333/NoStressPlanner-sub000/internal/models"
)

// RequestValidator wraps the shared validator instance with the custom rules
// the API uses.
type RequestValidator struct {
	validate *validator.Validate
}

func NewRequestValidator() *RequestValidator {
	v := validator.New()
	v.RegisterValidation("daykey", validateDayKey)
	return &RequestValidator{validate: v}
}

// Validate validates a request struct against its tags.
func (rv *RequestValidator) Validate(i interface{}) error {
	return rv.validate.Struct(i)
}

// validateDayKey accepts calendar days in the canonical YYYY-MM-DD form.
func validateDayKey(fl validator.FieldLevel) bool {
	_, err := time.Parse(models.DayKeyFormat, fl.Field().String())
	return err == nil
}

func writeValidationError(w http.ResponseWriter, err error) {
	message := "invalid request"
	if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
		first := errs[0]
		message = fmt.Sprintf("field %s failed validation rule %s", strings.ToLower(first.Field()), first.Tag())
	}
	writeJSON(w, http.StatusBadRequest, map[string]string{
		"error": message,
		"kind":  string(apperr.KindValidation),
	})
}
