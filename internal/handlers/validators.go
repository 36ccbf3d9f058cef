package handlers

import (
	"fmt"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	seatvalidator "github.com/smarttransit/seat-inventory/pkg/validator"
)

// RegisterValidators installs the custom binding tags used by request models.
// It must run before the router serves requests.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected binding validator engine %T", binding.Validator.Engine())
	}

	if err := v.RegisterValidation("seat_number", func(fl validator.FieldLevel) bool {
		return seatvalidator.IsValidSeat(fl.Field().String())
	}); err != nil {
		return fmt.Errorf("failed to register seat_number validator: %w", err)
	}

	return nil
}
