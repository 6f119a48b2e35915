package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// ValidationConfig represents validation configuration
type ValidationConfig struct {
	CustomValidators    map[string]validator.Func
	CustomErrorMessages map[string]string
}

func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		CustomErrorMessages: map[string]string{
			"required": "%s is required",
			"oneof":    "%s must be one of: %s",
		},
	}
}

var errorMessages = DefaultValidationConfig().CustomErrorMessages

// RegisterValidation installs custom validators on gin's validator and
// makes field errors report JSON names.
func RegisterValidation(config ValidationConfig) error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("unexpected validator engine")
	}

	for tag, fn := range config.CustomValidators {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return fmt.Errorf("register validator %q: %w", tag, err)
		}
	}

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	if config.CustomErrorMessages != nil {
		errorMessages = config.CustomErrorMessages
	}
	return nil
}

// ValidationMessage describes a binding error for the client.
func ValidationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		msgs := make([]string, 0, len(verrs))
		for _, e := range verrs {
			format, ok := errorMessages[e.Tag()]
			if !ok {
				msgs = append(msgs, fmt.Sprintf("%s failed %s validation", e.Field(), e.Tag()))
				continue
			}
			if strings.Count(format, "%s") > 1 {
				msgs = append(msgs, fmt.Sprintf(format, e.Field(), strings.ReplaceAll(e.Param(), " ", ", ")))
			} else {
				msgs = append(msgs, fmt.Sprintf(format, e.Field()))
			}
		}
		return strings.Join(msgs, "; ")
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return fmt.Sprintf("%s has an invalid type", typeErr.Field)
	}
	return "request body must be a JSON object"
}
