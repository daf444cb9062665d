package web

import (
	"github.com/go-playground/validator/v10"

	"github.com/teslashibe/go-focus/pkg/detection"
	"github.com/teslashibe/go-focus/pkg/focus"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterValidation("profile", validateProfile)
	v.RegisterValidation("backend", validateBackend)
	return v
}

// validateProfile accepts an empty value or a known engine profile.
func validateProfile(fl validator.FieldLevel) bool {
	_, err := focus.Profile(fl.Field().String())
	return err == nil
}

// validateBackend accepts an empty value, "none", or a detector chain.
func validateBackend(fl validator.FieldLevel) bool {
	spec := fl.Field().String()
	if spec == "" || spec == "none" {
		return true
	}
	_, err := detection.ParseBackends(spec)
	return err == nil
}

// StartRequest is the body of POST /api/sessions.
type StartRequest struct {
	ID        string `json:"id" validate:"omitempty,max=128,printascii"`
	MeetingID string `json:"meeting_id" validate:"max=256"`
	UserID    string `json:"user_id" validate:"max=256"`
	UserName  string `json:"user_name" validate:"max=256"`
	Profile   string `json:"profile" validate:"profile"`
	Backend   string `json:"backend" validate:"backend"`
}
