package utils

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ttacon/libphonenumber"
)

// NormalizePhoneNumber parses and formats a phone number into E.164.
// Country defaults to PHONE_DEFAULT_REGION (fallback "MM").
// Invalid numbers return an error; callers decide whether to drop or keep raw.
func NormalizePhoneNumber(phoneNumber string) (string, error) {
	phoneNumber = strings.TrimSpace(phoneNumber)
	if phoneNumber == "" {
		return "", errors.New("empty phone number")
	}

	countryCode := strings.TrimSpace(os.Getenv("PHONE_DEFAULT_REGION"))
	if countryCode == "" {
		countryCode = "MM"
	}

	p, err := libphonenumber.Parse(phoneNumber, countryCode)
	if err != nil {
		return "", err
	}
	if !libphonenumber.IsValidNumber(p) {
		return "", fmt.Errorf("invalid phone number: %s", phoneNumber)
	}
	return libphonenumber.Format(p, libphonenumber.E164), nil
}

// TruncateString cuts s to at most max runes. Remote platforms reject
// over-length text fields; truncation is preferred over a failed sync.
func TruncateString(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
