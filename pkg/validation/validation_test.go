package validation

import (
	"strings"
	"testing"
	"time"
)

func TestValidateDeviceID(t *testing.T) {
	tests := []struct {
		name        string
		id          string
		expectError bool
	}{
		{
			name:        "Valid GUID",
			id:          "3f2b8c1e-9a4d-4e2f-8b7a-1c2d3e4f5a6b",
			expectError: false,
		},
		{
			name:        "Valid row key",
			id:          "DEV_01.rk",
			expectError: false,
		},
		{
			name:        "Braced GUID",
			id:          "{3f2b8c1e-9a4d-4e2f-8b7a-1c2d3e4f5a6b}",
			expectError: true,
		},
		{
			name:        "Empty",
			id:          "",
			expectError: true,
		},
		{
			name:        "Path traversal",
			id:          "../etc/passwd",
			expectError: true,
		},
		{
			name:        "Whitespace",
			id:          "abc def",
			expectError: true,
		},
		{
			name:        "Too long",
			id:          strings.Repeat("a", DeviceIDMaxLength+1),
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDeviceID(tt.id)
			if tt.expectError && err == nil {
				t.Errorf("Expected error for id %q, but got none", tt.id)
			}
			if !tt.expectError && err != nil {
				t.Errorf("Expected no error for id %q, but got: %v", tt.id, err)
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	got, err := ParseDate("dateFrom", "2026-02-01", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("start of day: got %v", got)
	}

	got, err = ParseDate("dateTo", "2026-02-01", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Day() != 1 || got.Hour() != 23 {
		t.Errorf("end of day: got %v", got)
	}

	got, err = ParseDate("dateFrom", "2026-02-01T10:30:00.000+02:00", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Hour() != 8 || got.Location() != time.UTC {
		t.Errorf("timestamp should be converted to UTC: got %v", got)
	}

	if got, err := ParseDate("dateFrom", "", false); err != nil || !got.IsZero() {
		t.Errorf("empty should be zero without error")
	}
	if _, err := ParseDate("dateFrom", "yesterday", false); err == nil {
		t.Errorf("expected error for unparseable date")
	}
}

func TestValidateDateRange(t *testing.T) {
	a := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := a.Add(time.Hour)
	if err := ValidateDateRange(a, b); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateDateRange(b, a); err == nil {
		t.Errorf("expected error for inverted range")
	}
	if err := ValidateDateRange(b, time.Time{}); err != nil {
		t.Errorf("open range should be valid")
	}
}

func TestParseDays(t *testing.T) {
	tests := []struct {
		value       string
		expected    int
		expectError bool
	}{
		{"", 30, false},
		{"7", 7, false},
		{"0", 0, true},
		{"366", 0, true},
		{"seven", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseDays(tt.value, 30)
		if tt.expectError {
			if err == nil {
				t.Errorf("ParseDays(%q): expected error", tt.value)
			}
			continue
		}
		if err != nil || got != tt.expected {
			t.Errorf("ParseDays(%q) = %d, %v; want %d", tt.value, got, err, tt.expected)
		}
	}
}

func TestValidateDays(t *testing.T) {
	for _, n := range []int{1, 30, MaxDays} {
		if err := ValidateDays(n); err != nil {
			t.Errorf("ValidateDays(%d): unexpected error %v", n, err)
		}
	}
	for _, n := range []int{0, -1, MaxDays + 1} {
		if err := ValidateDays(n); err == nil {
			t.Errorf("ValidateDays(%d): expected error", n)
		}
	}
}

func TestValidateOneOf(t *testing.T) {
	allowed := []string{"asc", "desc"}
	if err := ValidateOneOf("order", "", allowed); err != nil {
		t.Errorf("empty should be accepted")
	}
	if err := ValidateOneOf("order", "desc", allowed); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateOneOf("order", "up", allowed); err == nil {
		t.Errorf("expected error")
	}
}

func TestValidateEmail(t *testing.T) {
	valid := []string{"admin@example.com", "j.doe@corp.example.org"}
	invalid := []string{"", "admin", "Admin <admin@example.com>", "a@"}

	for _, e := range valid {
		if err := ValidateEmail(e); err != nil {
			t.Errorf("ValidateEmail(%q) unexpected error: %v", e, err)
		}
	}
	for _, e := range invalid {
		if err := ValidateEmail(e); err == nil {
			t.Errorf("ValidateEmail(%q) expected error", e)
		}
	}
}

func TestValidateSignupInput(t *testing.T) {
	if errs := ValidateSignupInput("Jane", "jane@example.com", "secret1"); len(errs) != 0 {
		t.Errorf("expected no errors, got %v", errs)
	}

	errs := ValidateSignupInput("", "nope", "123")
	if len(errs) != 3 {
		t.Errorf("expected 3 errors, got %d: %v", len(errs), errs)
	}
}

func TestValidateSearch(t *testing.T) {
	if err := ValidateSearch("search", strings.Repeat("x", MaxSearchLength)); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateSearch("search", strings.Repeat("x", MaxSearchLength+1)); err == nil {
		t.Errorf("expected error")
	}
}
