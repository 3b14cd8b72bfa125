package domain

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var numberDraftRe = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

// IsValidNumberDraft reports whether a form draft is a well-formed
// non-negative decimal: digits, optionally followed by one dot and more digits.
// Signs, letters, exponents and repeated dots are rejected.
func IsValidNumberDraft(s string) bool {
	return numberDraftRe.MatchString(strings.TrimSpace(s))
}

// ParseAmountDraft converts a form draft into an exact decimal.
func ParseAmountDraft(field, s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, &ErrValidation{Field: field, Message: "amount is required"}
	}
	if !IsValidNumberDraft(s) {
		return decimal.Zero, &ErrValidation{Field: field, Message: "amount must be a non-negative decimal number"}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &ErrValidation{Field: field, Message: "amount must be a non-negative decimal number"}
	}
	return d, nil
}

// ParsePositiveAmountDraft is ParseAmountDraft that also rejects zero.
func ParsePositiveAmountDraft(field, s string) (decimal.Decimal, error) {
	d, err := ParseAmountDraft(field, s)
	if err != nil {
		return d, err
	}
	if !d.IsPositive() {
		return decimal.Zero, &ErrValidation{Field: field, Message: "amount must be greater than zero"}
	}
	return d, nil
}

// ParseQuantityDraft converts a form draft into a non-negative item count.
func ParseQuantityDraft(field, s string) (int, error) {
	s = strings.TrimSpace(s)
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || strings.HasPrefix(s, "+") {
		return 0, &ErrValidation{Field: field, Message: "quantity must be a non-negative whole number"}
	}
	return n, nil
}
