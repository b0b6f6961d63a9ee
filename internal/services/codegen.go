package services

import (
	"crypto/rand"
	"math/big"
	"strings"
	"unicode/utf8"

	"agentledger/internal/models"
)

const (
	defaultCodeLength = 8
	maxCodeLength     = 32
	memberPrefix      = "M"
)

const (
	numericAlphabet = "0123456789"
	// Letters that are easy to misread on a printed slip are left out.
	alphabeticAlphabet   = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	alphanumericAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

func alphabetFor(digitType string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(digitType)) {
	case "numbers", "numeric":
		return numericAlphabet, nil
	case "letters", "alphabetic":
		return alphabeticAlphabet, nil
	case "", "mixed", "alphanumeric":
		return alphanumericAlphabet, nil
	default:
		return "", ErrInvalidInput
	}
}

// GenerateCode returns a random access code drawn from the digit type's alphabet.
// A non-positive length falls back to the default of 8.
func GenerateCode(digitType string, length int) (string, error) {
	alphabet, err := alphabetFor(digitType)
	if err != nil {
		return "", err
	}
	if length <= 0 {
		length = defaultCodeLength
	}
	if length > maxCodeLength {
		return "", ErrInvalidInput
	}
	max := big.NewInt(int64(len(alphabet)))
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(alphabet[n.Int64()])
	}
	return b.String(), nil
}

// Credentials derives the hotspot username and password for a code.
// Member accounts log in as "M"+code with the bare code as password;
// voucher accounts use the code for both.
func Credentials(accountType, code string) (username, password string) {
	if accountType == models.AccountTypeMember {
		return memberPrefix + code, code
	}
	return code, code
}

// BuildComment composes "<agent> | <phone> | <package>" within maxRunes.
// The phone keeps only its last 12 digits; the two names are shortened as
// needed, the longer one first.
func BuildComment(agentName, phone, packageName string, maxRunes int) string {
	const sep = " | "
	phone = lastDigits(phone, 12)
	agentName = strings.TrimSpace(agentName)
	packageName = strings.TrimSpace(packageName)

	budget := maxRunes - 2*utf8.RuneCountInString(sep) - utf8.RuneCountInString(phone)
	if budget < 0 {
		return truncateRunes(agentName+sep+phone+sep+packageName, maxRunes)
	}
	nameLen := utf8.RuneCountInString(agentName)
	pkgLen := utf8.RuneCountInString(packageName)
	for nameLen+pkgLen > budget {
		if nameLen >= pkgLen {
			nameLen--
		} else {
			pkgLen--
		}
	}
	return truncateRunes(agentName, nameLen) + sep + phone + sep + truncateRunes(packageName, pkgLen)
}

func lastDigits(phone string, n int) string {
	var digits []rune
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits = append(digits, r)
		}
	}
	if len(digits) > n {
		digits = digits[len(digits)-n:]
	}
	return string(digits)
}

func truncateRunes(value string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(value)
	if len(runes) <= n {
		return value
	}
	return string(runes[:n])
}
