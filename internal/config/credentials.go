package config

import (
	"errors"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"mindpages/internal/ragerr"
)

// Required environment keys for the model service.
const (
	EnvAPIKey     = "LLM_API_KEY"
	EnvServiceURL = "LLM_SERVICE_URL"
	EnvProjectID  = "LLM_PROJECT_ID"
)

// Credentials identify the caller to the model service.
// They are read from the process environment on every check and never stored in Config.
type Credentials struct {
	APIKey     string `env:"LLM_API_KEY" validate:"required"`
	ServiceURL string `env:"LLM_SERVICE_URL" validate:"required"`
	ProjectID  string `env:"LLM_PROJECT_ID" validate:"required"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return fld.Tag.Get("env")
	})
	return v
}

// ValidateEnvironment checks that every required key is present and non-empty.
// The returned error names all missing keys. A nil lookup means os.Getenv.
func ValidateEnvironment(lookup func(string) string) (Credentials, error) {
	if lookup == nil {
		lookup = os.Getenv
	}
	creds := Credentials{
		APIKey:     strings.TrimSpace(lookup(EnvAPIKey)),
		ServiceURL: strings.TrimSpace(lookup(EnvServiceURL)),
		ProjectID:  strings.TrimSpace(lookup(EnvProjectID)),
	}

	err := validate.Struct(creds)
	if err == nil {
		return creds, nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return Credentials{}, err
	}
	missing := make([]string, 0, len(verrs))
	for _, e := range verrs {
		missing = append(missing, e.Field())
	}
	return Credentials{}, ragerr.Config(missing...)
}
