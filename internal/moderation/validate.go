package moderation

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Input length limits, in characters
const (
	MaxReasonLength              = 1000
	MaxInternalNotesLength       = 5000
	MaxNotificationMessageLength = 2000
	MaxDescriptionLength         = 2000
	MaxUserIDLength              = 128
	MaxTargetIDLength            = 256
	MaxDurationDays              = 3650
)

func validateUUID(field, value string) error {
	if value == "" {
		return validationError("%s is required", field)
	}
	if _, err := uuid.Parse(value); err != nil {
		return validationError("%s is not a valid UUID", field)
	}
	return nil
}

func validateUserID(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return validationError("%s is required", field)
	}
	if len(value) > MaxUserIDLength {
		return validationError("%s exceeds %d characters", field, MaxUserIDLength)
	}
	return nil
}

func validateText(field, value string, max int, required bool) error {
	if required && strings.TrimSpace(value) == "" {
		return validationError("%s is required", field)
	}
	if utf8.RuneCountInString(value) > max {
		return validationError("%s exceeds %d characters", field, max)
	}
	return nil
}

func validateOptionalText(field string, value *string, max int) error {
	if value == nil {
		return nil
	}
	return validateText(field, *value, max, false)
}

func validateDuration(days *int) error {
	if days == nil {
		return nil
	}
	if *days <= 0 || *days > MaxDurationDays {
		return validationError("duration_days must be between 1 and %d", MaxDurationDays)
	}
	return nil
}

// expiryFrom returns now+days, or nil for a permanent effect
func expiryFrom(now time.Time, days *int) *time.Time {
	if days == nil {
		return nil
	}
	t := now.AddDate(0, 0, *days)
	return &t
}

func strPtr(s string) *string {
	return &s
}

func nonEmptyPtr(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return s
}
