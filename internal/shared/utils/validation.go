package utils

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/GriffinCanCode/seadaemon/internal/shared/types"
)

// String length limits
const (
	MaxAppNameLength   = 128
	MaxOptionKeyLength = 256
)

// Regular expressions for validation
var (
	// AppNamePattern allows alphanumeric, dots, hyphens, underscores; no leading dot
	AppNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-][a-zA-Z0-9._-]*$`)
	// OptionKeyPattern allows the characters environment variable names use
	OptionKeyPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_.-]*$`)
)

// ValidateString validates a string field with length and content checks
func ValidateString(value, fieldName string, minLen, maxLen int, required bool) error {
	if required && value == "" {
		return fmt.Errorf("%s is required", fieldName)
	}

	if value == "" && !required {
		return nil
	}

	length := utf8.RuneCountInString(value)
	if length < minLen {
		return fmt.Errorf("%s must be at least %d characters", fieldName, minLen)
	}
	if length > maxLen {
		return fmt.Errorf("%s must not exceed %d characters", fieldName, maxLen)
	}

	if strings.Contains(value, "\x00") {
		return fmt.Errorf("%s contains invalid characters", fieldName)
	}

	return nil
}

// ValidateAppName checks that name is usable as a directory under the apps dir
func ValidateAppName(name string) error {
	if err := ValidateString(name, "app_name", 1, MaxAppNameLength, true); err != nil {
		return fmt.Errorf("%w: %v", types.ErrInvalidAppName, err)
	}
	if !AppNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q (only alphanumeric, dots, hyphens, and underscores allowed)", types.ErrInvalidAppName, name)
	}
	return nil
}

// ValidateOptionKey validates a global or per-app option key
func ValidateOptionKey(key string) error {
	if err := ValidateString(key, "key", 1, MaxOptionKeyLength, true); err != nil {
		return err
	}
	if !OptionKeyPattern.MatchString(key) {
		return fmt.Errorf("key contains invalid characters: %q", key)
	}
	return nil
}
