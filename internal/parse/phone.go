package parse

import "strings"

// PhoneDigits is the length of a normalized phone number.
const PhoneDigits = 10

// DigitsOnly keeps the ASCII decimal digits of s in their original order.
func DigitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if c := s[i]; c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// ToE164US formats a 10-digit US number as +1XXXXXXXXXX.
func ToE164US(phone10 string) string {
	return "+1" + phone10
}
