package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate reports every invalid setting in one error.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, ve := range verrs {
		field := strings.ToLower(strings.TrimPrefix(ve.Namespace(), "Config."))
		if ve.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: %s=%s", field, ve.Tag(), ve.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: %s", field, ve.Tag()))
		}
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}
