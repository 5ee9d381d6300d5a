package handlers

import (
	"fmt"
	"regexp"
	"time"
)

const (
	ModeMinimal = "minimal"
	ModeFull    = "full"

	defaultLimit = 100
	maxLimit     = 1000
)

var countryCodePattern = regexp.MustCompile(`^[A-Za-z]{2}$`)

// ValidationError represents a validation error with instructions
type ValidationError struct {
	Field        string   `json:"field"`
	Message      string   `json:"message"`
	Instructions []string `json:"instructions"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateName checks that a server name was given
func ValidateName(name string) error {
	if name == "" {
		return &ValidationError{
			Field:   "name",
			Message: "name is required",
			Instructions: []string{
				"1. Call list_servers to see the stored servers",
				"2. Use the exact 'name' value (the HostName column of the snapshot)",
				"3. Example: 'public-vpn-227'",
			},
		}
	}
	return nil
}

// ValidateCountryCode accepts an empty code or two ASCII letters
func ValidateCountryCode(code string) error {
	if code == "" || countryCodePattern.MatchString(code) {
		return nil
	}
	return &ValidationError{
		Field:   "country_code",
		Message: fmt.Sprintf("Invalid country_code %q. Must be two letters.", code),
		Instructions: []string{
			"Use the ISO 3166-1 alpha-2 code from the CountryShort column",
			"Example: 'JP', 'KR', 'US'",
			"Omit country_code to list servers from every country",
		},
	}
}

// NormalizeLimit applies the default and rejects out-of-range limits
func NormalizeLimit(limit int) (int, error) {
	if limit == 0 {
		return defaultLimit, nil
	}
	if limit < 0 || limit > maxLimit {
		return 0, &ValidationError{
			Field:   "limit",
			Message: fmt.Sprintf("limit must be between 1 and %d", maxLimit),
			Instructions: []string{
				fmt.Sprintf("Omit limit to get the first %d servers", defaultLimit),
				"Narrow the result with country_code instead of raising limit",
			},
		}
	}
	return limit, nil
}

// ValidateTimeRange validates that from is not after to. Zero values are open
// bounds.
func ValidateTimeRange(from, to time.Time) error {
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return &ValidationError{
			Field:   "from",
			Message: "Start time (from) is after end time (to)",
			Instructions: []string{
				"Provide 'from' and 'to' in RFC 3339 format with from <= to",
				"Example: from='2025-11-15T14:00:00Z', to='2025-11-15T15:00:00Z'",
				"Omit either bound to leave that side of the range open",
			},
		}
	}
	return nil
}

// ParseTime parses an optional RFC 3339 bound
func ParseTime(value, field string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("Invalid '%s' time format: %v", field, err),
			Instructions: []string{
				"Use RFC 3339 format with a zone",
				"Example: '2025-11-15T14:00:00Z'",
			},
		}
	}
	return t, nil
}

// ValidateMode validates output mode parameter
func ValidateMode(mode string) error {
	if mode == "" {
		return nil // Default will be used
	}

	if mode != ModeMinimal && mode != ModeFull {
		return &ValidationError{
			Field:   "mode",
			Message: "Invalid mode. Must be 'minimal' or 'full'",
			Instructions: []string{
				"Use mode='minimal' (default) to leave out the OpenVPN config blob",
				"Use mode='full' only when you need the base64 OpenVPN config",
			},
		}
	}

	return nil
}
