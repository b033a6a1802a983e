package render

import (
	"errors"
	"fmt"
	"strings"
)

// ErrTemplateNotFound is returned for unknown template names.
var ErrTemplateNotFound = errors.New("template not found")

// ErrMissingVariables is matched by MissingVariablesError via errors.Is.
var ErrMissingVariables = errors.New("missing required template variables")

// MissingVariablesError lists required variables absent from a render call.
type MissingVariablesError struct {
	Template string
	Missing  []string
}

func (e *MissingVariablesError) Error() string {
	return fmt.Sprintf("template %s: missing required variables: %s", e.Template, strings.Join(e.Missing, ", "))
}

// Is makes errors.Is(err, ErrMissingVariables) succeed.
func (e *MissingVariablesError) Is(target error) bool {
	return target == ErrMissingVariables
}
