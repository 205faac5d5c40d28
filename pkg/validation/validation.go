package validation

import (
	"fmt"
	"net/mail"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Device id validation constants
const (
	DeviceIDMaxLength = 128
)

// Query limits
const (
	MaxSearchLength = 200
	MaxDays         = 365
	MaxNameLength   = 100
	MinPasswordLen  = 6
)

var deviceIDRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:-]*$`)

// ValidateDeviceID checks that id could name a device. Ids are GUIDs or
// upstream row keys; anything else cannot match a device.
func ValidateDeviceID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("device id is required")
	}
	if len(id) > DeviceIDMaxLength {
		return fmt.Errorf("device id cannot exceed %d characters", DeviceIDMaxLength)
	}
	if !deviceIDRegex.MatchString(id) {
		return fmt.Errorf("invalid device id format: %s", id)
	}
	return nil
}

// dateLayouts are accepted for dateFrom/dateTo query parameters.
var dateLayouts = []string{time.RFC3339Nano, "2006-01-02"}

// ParseDate parses an optional date parameter. Empty yields the zero time. A
// bare date is the start of that UTC day, or its last instant when endOfDay
// is set.
func ParseDate(field, value string, endOfDay bool) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, value)
		if err != nil {
			continue
		}
		if layout == "2006-01-02" && endOfDay {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%s must be an ISO-8601 date or timestamp", field)
}

// ValidateDateRange checks that from is not after to when both are set.
func ValidateDateRange(from, to time.Time) error {
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return fmt.Errorf("dateFrom must not be after dateTo")
	}
	return nil
}

// ParseDays parses a day-count parameter into [1, MaxDays]; empty yields def.
func ParseDays(value string, def int) (int, error) {
	return ParseIntInRange("days", value, def, 1, MaxDays)
}

// ValidateDays checks a day count already parsed by a caller.
func ValidateDays(n int) error {
	if n < 1 || n > MaxDays {
		return fmt.Errorf("days must be between 1 and %d", MaxDays)
	}
	return nil
}

// ParseIntInRange parses an optional integer parameter within [min, max].
func ParseIntInRange(field, value string, def, min, max int) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return def, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", field)
	}
	if n < min || n > max {
		return 0, fmt.Errorf("%s must be between %d and %d", field, min, max)
	}
	return n, nil
}

// ValidateSearch bounds free-text filters.
func ValidateSearch(field, value string) error {
	if len(value) > MaxSearchLength {
		return fmt.Errorf("%s cannot exceed %d characters", field, MaxSearchLength)
	}
	return nil
}

// ValidateOneOf checks that value is empty or one of allowed.
func ValidateOneOf(field, value string, allowed []string) error {
	if value == "" {
		return nil
	}
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of: %s", field, strings.Join(allowed, ", "))
}

// ValidateEmail validates an email address
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return fmt.Errorf("invalid email address: %s", email)
	}
	return nil
}

// ValidateName validates a display name
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("name is required")
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("name cannot exceed %d characters", MaxNameLength)
	}
	return nil
}

// ValidateRequired checks if a string field is not empty
func ValidateRequired(fieldName, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	return nil
}

// ValidateSignupInput validates all fields for creating an account
func ValidateSignupInput(name, email, password string) []string {
	var errors []string

	if err := ValidateName(name); err != nil {
		errors = append(errors, err.Error())
	}
	if err := ValidateEmail(email); err != nil {
		errors = append(errors, err.Error())
	}
	if len(password) < MinPasswordLen {
		errors = append(errors, fmt.Sprintf("password must be at least %d characters long", MinPasswordLen))
	}

	return errors
}
