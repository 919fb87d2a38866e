package domain

import (
	"strings"
	"time"
)

var birthdateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"01/02/2006",
}

// ParseBirthdate accepts YYYY-MM-DD, an ISO timestamp, or MM/DD/YYYY
func ParseBirthdate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, NewValidationError("birthdate", "birthdate is required", raw)
	}
	for _, layout := range birthdateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, NewValidationError("birthdate", "invalid birthdate format, use YYYY-MM-DD or MM/DD/YYYY", raw)
}

// AgeAt returns the number of whole calendar years between birth and now
func AgeAt(birth, now time.Time) (int, error) {
	birth = birth.UTC()
	now = now.UTC()
	if birth.After(now) {
		return 0, NewValidationError("birthdate", "birthdate is in the future", birth.Format("2006-01-02"))
	}

	years := now.Year() - birth.Year()
	if now.Month() < birth.Month() || (now.Month() == birth.Month() && now.Day() < birth.Day()) {
		years--
	}
	return years, nil
}

// AgeFromBirthdate parses raw and derives the age in years at now
func AgeFromBirthdate(raw string, now time.Time) (float64, error) {
	birth, err := ParseBirthdate(raw)
	if err != nil {
		return 0, err
	}
	years, err := AgeAt(birth, now)
	if err != nil {
		return 0, err
	}
	return float64(years), nil
}
