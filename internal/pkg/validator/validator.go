package validator

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator instance
var validate *validator.Validate

var pinPattern = regexp.MustCompile(`^\d{6}$`)

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
	// Account role validation
	validate.RegisterValidation("role", func(fl validator.FieldLevel) bool {
		role := fl.Field().String()
		validRoles := []string{"ADMIN", "MERCHANT", "USER"}
		for _, r := range validRoles {
			if role == r {
				return true
			}
		}
		return false
	})

	// Ledger entry type validation
	validate.RegisterValidation("tx_type", func(fl validator.FieldLevel) bool {
		txType := fl.Field().String()
		return txType == "CREDIT" || txType == "DEBIT"
	})

	// Admin PIN format validation
	validate.RegisterValidation("pin", func(fl validator.FieldLevel) bool {
		return pinPattern.MatchString(fl.Field().String())
	})
}

// Validate validates a struct and returns a map of field errors
func Validate(s interface{}) map[string]string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	errors := make(map[string]string)
	for _, err := range err.(validator.ValidationErrors) {
		field := err.Field()
		switch err.Tag() {
		case "required":
			errors[field] = "This field is required"
		case "email":
			errors[field] = "Invalid email format"
		case "min":
			errors[field] = "Value is too short (min: " + err.Param() + ")"
		case "max":
			errors[field] = "Value is too long (max: " + err.Param() + ")"
		case "gt":
			errors[field] = "Value must be greater than " + err.Param()
		case "gte":
			errors[field] = "Value must be at least " + err.Param()
		case "uuid":
			errors[field] = "Invalid identifier"
		case "role":
			errors[field] = "Invalid role. Must be: ADMIN, MERCHANT, or USER"
		case "tx_type":
			errors[field] = "Invalid type. Must be: CREDIT or DEBIT"
		case "pin":
			errors[field] = "PIN must be exactly 6 digits"
		default:
			errors[field] = "Invalid value"
		}
	}

	return errors
}

// ValidateVar validates a single variable
func ValidateVar(field interface{}, tag string) error {
	return validate.Var(field, tag)
}
