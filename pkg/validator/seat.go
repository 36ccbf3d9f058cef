package validator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrEmptySeat indicates a blank seat identifier
	ErrEmptySeat = errors.New("seat identifier cannot be empty")

	// ErrInvalidSeat indicates a seat identifier outside the row+number layout (A1, BB12, C103)
	ErrInvalidSeat = errors.New("seat identifier must be 1-3 letters followed by 1-3 digits")

	// ErrDuplicateSeat indicates the same seat was requested twice
	ErrDuplicateSeat = errors.New("seat requested more than once")
)

// seatRegex matches a normalised seat identifier
var seatRegex = regexp.MustCompile(`^[A-Z]{1,3}[0-9]{1,3}$`)

// NormalizeSeat trims and upper-cases a seat identifier
func NormalizeSeat(seat string) string {
	return strings.ToUpper(strings.TrimSpace(seat))
}

// ValidateSeat normalises a seat identifier and checks its layout
func ValidateSeat(seat string) (string, error) {
	normalized := NormalizeSeat(seat)
	if normalized == "" {
		return "", ErrEmptySeat
	}
	if !seatRegex.MatchString(normalized) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSeat, seat)
	}
	return normalized, nil
}

// IsValidSeat is a convenience method that returns true if seat is valid
func IsValidSeat(seat string) bool {
	_, err := ValidateSeat(seat)
	return err == nil
}

// ValidateSeatList normalises every seat and rejects invalid or repeated ones.
// Order is preserved so callers can pair seats with passengers by position.
func ValidateSeatList(seats []string) ([]string, error) {
	if len(seats) == 0 {
		return nil, ErrEmptySeat
	}

	normalized := make([]string, 0, len(seats))
	seen := make(map[string]struct{}, len(seats))
	for _, seat := range seats {
		s, err := ValidateSeat(seat)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[s]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSeat, s)
		}
		seen[s] = struct{}{}
		normalized = append(normalized, s)
	}
	return normalized, nil
}
