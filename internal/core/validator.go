package core

import (
	"errors"

	"github.com/go-playground/validator/v10"

	"notekeeper/internal/types"
)

// Validator wraps go-playground/validator for request body validation.
// Handlers declare constraints on their request structs via `validate` tags
// and call ValidateStruct after decoding.
type Validator struct {
	v *validator.Validate
}

// NewValidator creates a Validator with struct-tag validation enabled.
func NewValidator() *Validator {
	return &Validator{v: validator.New()}
}

// ValidateStruct runs tag validation on the given struct and translates the
// first failure into a 400 AppError naming the offending field.
func (v *Validator) ValidateStruct(s interface{}) error {
	err := v.v.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return types.NewAppErrorWithDetails(
			types.ErrCodeValidationMissingField,
			"invalid value for field "+fe.Field(),
			err,
			map[string]any{
				"field": fe.Field(),
				"rule":  fe.Tag(),
			},
		)
	}

	return types.NewAppError(types.ErrCodeValidationMissingField, "invalid request body", err)
}
