package application

import (
	"fmt"
	"slices"

	"github.com/go-playground/validator/v10"
)

// registerCustomValidators registers the semantic checks used by reward
// configuration struct tags. kinds must be sorted.
func registerCustomValidators(v *validator.Validate, kinds []string) error {
	if err := v.RegisterValidation("verifier_kind", verifierKindValidator(kinds)); err != nil {
		return fmt.Errorf("failed to register verifier_kind validator: %w", err)
	}
	return nil
}

// verifierKindValidator accepts tags that name a registered verifier kind.
// Tags are case-folded during decoding, so the comparison is exact.
func verifierKindValidator(kinds []string) validator.Func {
	return func(fl validator.FieldLevel) bool {
		_, found := slices.BinarySearch(kinds, fl.Field().String())
		return found
	}
}
