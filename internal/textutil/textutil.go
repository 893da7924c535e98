// Package textutil holds small helpers for normalizing WhatsApp message
// text and Saudi phone/identity formats used across the booking flow.
package textutil

import (
	"regexp"
	"strings"
	"unicode"
)

var nationalIDPattern = regexp.MustCompile(`^[12]\d{9}$`)

var digitsOnly = regexp.MustCompile(`\D+`)

var saudiMobilePattern = regexp.MustCompile(`(?:\+?966)?0?(5[0-9]{8})`)

// NormalizePhone reduces a WhatsApp sender number to digits and prefixes
// it with the given country code when it looks like a local number.
// "0501234567" with country code "966" becomes "966501234567".
func NormalizePhone(raw, countryCode string) string {
	digits := digitsOnly.ReplaceAllString(raw, "")
	if digits == "" {
		return ""
	}
	if strings.HasPrefix(digits, countryCode) {
		return digits
	}
	digits = strings.TrimLeft(digits, "0")
	if digits == "" {
		return ""
	}
	return countryCode + digits
}

// ValidNationalID reports whether s is a well-formed Saudi national or
// resident ID: ten digits starting with 1 or 2.
func ValidNationalID(s string) bool {
	return nationalIDPattern.MatchString(strings.TrimSpace(s))
}

// ExtractSaudiPhone pulls a Saudi mobile number out of free text and
// returns it normalized to the 966 prefix. WhatsApp users paste their
// number in many shapes ("+966501234567", "0501234567", "501234567");
// all of them reduce to "966" plus the nine-digit 5xxxxxxxx core.
// Returns "" when no mobile number is present.
func ExtractSaudiPhone(s string) string {
	m := saudiMobilePattern.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return "966" + m[1]
}

// IsArabic reports whether s reads as an Arabic message. Any Arabic
// letter classifies the whole message as Arabic, matching how Saudi
// patients mix English loanwords into Arabic sentences. Text with no
// Arabic letters at all is not Arabic.
func IsArabic(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Arabic, r) && unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

// MostlyArabic reports whether the majority of letters in s are Arabic.
// Stricter than IsArabic, used where the content itself must be Arabic
// script rather than merely an Arabic-language message.
func MostlyArabic(s string) bool {
	var arabic, letters int
	for _, r := range s {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.Is(unicode.Arabic, r) {
			arabic++
		}
	}
	if letters == 0 {
		return false
	}
	return arabic*2 > letters
}

// NormalizeMessage trims and collapses interior whitespace so that
// visually identical messages hash identically.
func NormalizeMessage(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// SelectionIndex parses a 1-based menu choice from a message, returning
// 0 when the message is not a plain number. Eastern Arabic digits are
// accepted alongside ASCII digits.
func SelectionIndex(msg string) int {
	trimmed := strings.TrimSpace(msg)
	if trimmed == "" {
		return 0
	}
	n := 0
	for _, r := range trimmed {
		var d int
		switch {
		case r >= '0' && r <= '9':
			d = int(r - '0')
		case r >= '٠' && r <= '٩': // ٠..٩
			d = int(r - '٠')
		default:
			return 0
		}
		n = n*10 + d
		if n > 1000 {
			return 0
		}
	}
	return n
}
