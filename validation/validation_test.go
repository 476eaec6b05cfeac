package validation

import (
	"testing"

	"github.com/go-playground/validator/v10"
)

type titleInput struct {
	Title string `validate:"titleValidator"`
}

type sourceInput struct {
	Source string `validate:"sourceValidator"`
}

func newValidator(t *testing.T) *validator.Validate {
	t.Helper()
	validate := validator.New()
	validate.RegisterValidation("titleValidator", TitleValidator)
	validate.RegisterValidation("sourceValidator", SourceValidator)
	return validate
}

// TestTitleValidator checks that blank titles are rejected and real titles pass.
func TestTitleValidator(t *testing.T) {
	validate := newValidator(t)

	for _, title := range []string{"", " ", "\t  \n"} {
		if err := validate.Struct(titleInput{Title: title}); err == nil {
			t.Errorf("Expected title %q to fail validation", title)
		}
	}
	for _, title := range []string{"Buy milk", " padded "} {
		if err := validate.Struct(titleInput{Title: title}); err != nil {
			t.Errorf("Expected title %q to pass validation, got %v", title, err)
		}
	}
}

// TestSourceValidator checks the accepted source filter values.
func TestSourceValidator(t *testing.T) {
	validate := newValidator(t)

	for _, source := range []string{"all", "external", "local"} {
		if err := validate.Struct(sourceInput{Source: source}); err != nil {
			t.Errorf("Expected source %q to pass validation, got %v", source, err)
		}
	}
	for _, source := range []string{"", "firebase", "remote", "ALL"} {
		if err := validate.Struct(sourceInput{Source: source}); err == nil {
			t.Errorf("Expected source %q to fail validation", source)
		}
	}
}
