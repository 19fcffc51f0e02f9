// Package domain contains core concepts of the chat system.
// This file defines Account entities and the derived avatar fields.
// No runtime, network, or storage logic should be added here.
package domain

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
	"unicode"
)

type AccountID string

func (id AccountID) String() string { return string(id) }

// Account is the public profile of a registered user.
type Account struct {
	ID          AccountID
	DisplayName string
	Initials    string
	ColorTag    string
	Email       string
	CreatedAt   time.Time
}

// Initials keeps the first letter of the first two words, upper-cased.
// "ada king lovelace" gives "AK".
func Initials(displayName string) string {
	var b strings.Builder
	for i, word := range strings.Fields(displayName) {
		if i == 2 {
			break
		}
		for _, r := range word {
			b.WriteRune(unicode.ToUpper(r))
			break
		}
	}
	return b.String()
}

// RandomColorTag returns an avatar color formatted as #RRGGBB.
func RandomColorTag() string {
	return fmt.Sprintf("#%06X", rand.IntN(0xFFFFFF+1))
}

// NormalizeEmail is the canonical form used for uniqueness checks.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
