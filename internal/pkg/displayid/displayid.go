// Package displayid derives the short public ids shown on profiles and broker
// referral codes.
package displayid

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"unicode"
)

// FromCount maps the number of existing users to the next display id:
// AA001..AA999, AB001, ... Each letter pair covers 999 users.
func FromCount(count int) string {
	letters := count / 999
	number := count%999 + 1
	first := rune('A' + (letters/26)%26)
	second := rune('A' + letters%26)
	return fmt.Sprintf("%c%c%03d", first, second, number)
}

// Referral builds a broker referral code from "BR", the initials of name and
// four random digits, e.g. BRJD4821.
func Referral(name string) (string, error) {
	var initials strings.Builder
	for _, w := range strings.Fields(name) {
		r := []rune(w)[0]
		if unicode.IsLetter(r) {
			initials.WriteRune(unicode.ToUpper(r))
		}
		if initials.Len() == 2 {
			break
		}
	}
	if initials.Len() == 0 {
		initials.WriteString("XX")
	}
	n, err := rand.Int(rand.Reader, big.NewInt(10_000))
	if err != nil {
		return "", fmt.Errorf("generate referral: %w", err)
	}
	return fmt.Sprintf("BR%s%04d", initials.String(), n.Int64()), nil
}
