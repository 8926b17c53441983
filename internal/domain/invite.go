package domain

import (
	"fmt"
	"io"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	inviteCodePrefix    = "PT"
	inviteNameMaxLength = 6
	inviteSuffixLength  = 4
	inviteAlphabet      = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	inviteNameFallback  = "COACH"
)

// InviteNamePart derives the NAME segment of an invite code from a trainer's
// name: first name, accents stripped, upper-cased, letters and digits only,
// at most six characters.
func InviteNamePart(name string) string {
	first := FirstName(name)
	stripped, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), first)
	if err != nil {
		stripped = first
	}
	var b strings.Builder
	for _, r := range strings.ToUpper(stripped) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			if b.Len() == inviteNameMaxLength {
				break
			}
		}
	}
	if b.Len() == 0 {
		return inviteNameFallback
	}
	return b.String()
}

// NewInviteCode builds "PT-<NAME>-<RAND>" reading randomness from rnd.
func NewInviteCode(name string, rnd io.Reader) (string, error) {
	buf := make([]byte, inviteSuffixLength)
	if _, err := io.ReadFull(rnd, buf); err != nil {
		return "", fmt.Errorf("read random suffix: %w", err)
	}
	suffix := make([]byte, inviteSuffixLength)
	for i, v := range buf {
		suffix[i] = inviteAlphabet[int(v)%len(inviteAlphabet)]
	}
	return fmt.Sprintf("%s-%s-%s", inviteCodePrefix, InviteNamePart(name), suffix), nil
}

// NormalizeInviteCode makes user-typed codes comparable to stored ones.
func NormalizeInviteCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
