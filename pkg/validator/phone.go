package validator

import (
	"errors"
	"regexp"
	"strings"
)

var (
	// ErrEmptyPhone indicates phone number is empty
	ErrEmptyPhone = errors.New("phone number cannot be empty")

	// ErrInvalidFormat indicates phone number contains invalid characters
	ErrInvalidFormat = errors.New("phone number can only contain digits and an optional leading +")

	// ErrInvalidLength indicates the number is too short or too long for E.164
	ErrInvalidLength = errors.New("phone number must have 9 to 15 digits")
)

// digitsRegex matches digits only
var digitsRegex = regexp.MustCompile(`^\d+$`)

// NormalizeContactPhone converts a booking contact number to E.164.
// Local Sri Lankan numbers (0XXXXXXXXX) get the +94 country code;
// anything else must already carry its country code.
func NormalizeContactPhone(phone string) (string, error) {
	if strings.TrimSpace(phone) == "" {
		return "", ErrEmptyPhone
	}

	replacer := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")
	sanitized := replacer.Replace(strings.TrimSpace(phone))

	international := strings.HasPrefix(sanitized, "+")
	sanitized = strings.TrimPrefix(sanitized, "+")
	if strings.HasPrefix(sanitized, "00") {
		international = true
		sanitized = sanitized[2:]
	}

	if !digitsRegex.MatchString(sanitized) {
		return "", ErrInvalidFormat
	}

	if !international && strings.HasPrefix(sanitized, "0") && len(sanitized) == 10 {
		sanitized = "94" + sanitized[1:]
	}

	if len(sanitized) < 9 || len(sanitized) > 15 {
		return "", ErrInvalidLength
	}

	return "+" + sanitized, nil
}
