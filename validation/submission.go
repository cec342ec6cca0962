package validation

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/appforge/app-builder-api/models"

	"gopkg.in/go-playground/validator.v9"
)

// taskIDExp matches task IDs which contain at least one character usable in a
// repository name and no control characters
var taskIDExp *regexp.Regexp = regexp.MustCompile(`^[^\x00-\x1f]*[A-Za-z0-9][^\x00-\x1f]*$`)

// maxTaskIDLength keeps derived repository names under GitHub's 100 character limit
const maxTaskIDLength = 80

// validateTaskID is a custom validation which ensures a task ID can be turned into a
// repository name. Only works with fields which are strings.
func validateTaskID(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	return len(s) <= maxTaskIDLength && taskIDExp.MatchString(s)
}

// validateFilename ensures a string is a bare file name which cannot escape the
// directory it is saved in. Only works with fields which are strings.
func validateFilename(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "." || s == ".." || strings.ContainsAny(s, `/\`) {
		return false
	}

	return filepath.Base(s) == s
}

// newValidator builds a validator with all custom validations registered
func newValidator() *validator.Validate {
	validate := validator.New()
	validate.RegisterValidation("task_id", validateTaskID)
	validate.RegisterValidation("filename", validateFilename)

	return validate
}

// ValidateSubmission ensures a TaskSubmission's data meets all constraints. The
// returned error is safe to show to the submitter.
func ValidateSubmission(submission models.TaskSubmission) error {
	err := newValidator().Struct(submission)
	if err == nil {
		return nil
	}

	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("failed to validate submission: %s", err.Error())
	}

	// whyMap maps validation tags to user readable reasons
	whyMap := map[string]string{
		"required": "a value must be provided",
		"min":      "must be a positive integer",
		"url":      "must be an absolute URL",
		"base64":   "must be base64 encoded",
		"task_id":  "must contain a letter or digit, no control characters, and be at most 80 characters",
		"filename": "must be a file name without path separators",
	}

	problems := []string{}
	for _, fieldErr := range fieldErrs {
		why, ok := whyMap[fieldErr.Tag()]
		if !ok {
			why = fmt.Sprintf("failed the \"%s\" check", fieldErr.Tag())
		}

		problems = append(problems, fmt.Sprintf("%s %s", fieldErr.Namespace(), why))
	}

	return fmt.Errorf("invalid submission: %s", strings.Join(problems, "; "))
}
