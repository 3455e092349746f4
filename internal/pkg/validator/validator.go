package validator

import (
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()

	// Use JSON tag names in error messages
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	registerCustomValidations()
}

func registerCustomValidations() {
	// Spending limit time frame
	validate.RegisterValidation("time_frame", func(fl validator.FieldLevel) bool {
		frame := fl.Field().String()
		validFrames := []string{"daily", "weekly", "monthly"}
		for _, f := range validFrames {
			if frame == f {
				return true
			}
		}
		return false
	})

	// Ledger transaction source
	validate.RegisterValidation("tx_source", func(fl validator.FieldLevel) bool {
		source := fl.Field().String()
		validSources := []string{"text-generation", "embedding-generation", "tool-execution"}
		for _, s := range validSources {
			if source == s {
				return true
			}
		}
		return false
	})

	// IANA timezone name
	validate.RegisterValidation("timezone", func(fl validator.FieldLevel) bool {
		tz := fl.Field().String()
		if tz == "" {
			return true
		}
		_, err := time.LoadLocation(tz)
		return err == nil
	})
}

// Validate validates a struct and returns field-level error messages
func Validate(v interface{}) map[string]string {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	errs := make(map[string]string)
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		errs["_"] = err.Error()
		return errs
	}

	for _, fe := range validationErrors {
		errs[fe.Field()] = messageFor(fe)
	}
	return errs
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "time_frame":
		return "must be one of: daily, weekly, monthly"
	case "tx_source":
		return "must be one of: text-generation, embedding-generation, tool-execution"
	case "timezone":
		return "must be a valid IANA timezone"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	case "uuid":
		return "must be a valid UUID"
	default:
		return "is invalid"
	}
}
