package domain

import "strings"

// ValidateCreate validates the fields required to create a Document.
func ValidateCreate(title, content string) error {
	if err := validateTitle(title); err != nil {
		return err
	}
	if strings.TrimSpace(content) == "" {
		return NewValidationError("content", "must not be empty")
	}
	return nil
}

// ValidateUpdate validates a partial update; at least one of title/content
// must be present, and any field that is present must itself be valid.
func ValidateUpdate(title, content *string) error {
	if title == nil && content == nil {
		return NewValidationError("title|content", "at least one field must be provided")
	}
	if title != nil {
		if err := validateTitle(*title); err != nil {
			return err
		}
	}
	if content != nil && strings.TrimSpace(*content) == "" {
		return NewValidationError("content", "must not be empty")
	}
	return nil
}

func validateTitle(title string) error {
	n := len(title)
	if n < MinTitleLen || n > MaxTitleLen {
		return NewValidationError("title", "must be between 1 and 500 characters")
	}
	return nil
}
