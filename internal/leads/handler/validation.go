package handler

import (
	"crm_pipeline_backend/internal/leads/domain"
	"crm_pipeline_backend/platform/validator"

	playground "github.com/go-playground/validator/v10"
)

// RegisterValidations adds the lead_status tag used by the request DTOs.
func RegisterValidations(val *validator.Validator) error {
	return val.RegisterValidation("lead_status", func(fl playground.FieldLevel) bool {
		_, ok := domain.ParseStatus(fl.Field().String())
		return ok
	})
}
