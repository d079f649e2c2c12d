package errors

import (
	"strings"
	"unicode"
)

// maxPosterNameLength bounds poster names used in image references.
const maxPosterNameLength = 256

// ValidatePosterName validates a poster name before it is embedded in an
// image reference path. It rejects names that could be used for path
// traversal or injection.
//
// The validation rules are intentionally conservative:
//   - No empty names
//   - No control characters or null bytes
//   - No path separators or traversal sequences
//   - Maximum length of 256 characters
func ValidatePosterName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidName, "poster name cannot be empty")
	}

	if len(name) > maxPosterNameLength {
		return New(ErrCodeInvalidName, "poster name too long (max %d characters)", maxPosterNameLength)
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidName, "poster name contains invalid control characters")
		}
	}

	dangerousPatterns := []string{
		"..",   // Parent directory
		"/",    // Path separator
		"\\",   // Backslash (Windows path)
		"\x00", // Null byte
	}

	for _, pattern := range dangerousPatterns {
		if strings.Contains(name, pattern) {
			return New(ErrCodeInvalidName, "poster name contains invalid characters: %q", pattern)
		}
	}

	return nil
}

// ValidateURL validates a URL string for safety.
// It ensures the URL has a safe scheme (http or https).
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return New(ErrCodeInvalidInput, "URL cannot be empty")
	}

	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return New(ErrCodeInvalidInput, "URL must use http or https scheme")
	}

	return nil
}

// ValidateDataPath validates a data source path such as "/posters_info".
func ValidateDataPath(path string) error {
	if path == "" {
		return New(ErrCodeInvalidConfig, "data source path cannot be empty")
	}
	if !strings.HasPrefix(path, "/") {
		return New(ErrCodeInvalidConfig, "data source path must start with /: %q", path)
	}
	if strings.Contains(path, "..") {
		return New(ErrCodeInvalidConfig, "data source path cannot contain path traversal sequences (..)")
	}
	for _, r := range path {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return New(ErrCodeInvalidConfig, "data source path contains invalid characters")
		}
	}
	return nil
}
