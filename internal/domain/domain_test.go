package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePaymentMethod(t *testing.T) {
	cases := map[string]PaymentMethod{
		"cash":          PaymentCash,
		" Efectivo ":    PaymentCash,
		"CARD":          PaymentCard,
		"tarjeta":       PaymentCard,
		"transferencia": PaymentTransfer,
		"transfer":      PaymentTransfer,
		"mixto":         PaymentMixed,
		"mixed":         PaymentMixed,
		"":              PaymentCash,
		"bitcoin":       PaymentCash,
	}
	for raw, want := range cases {
		assert.Equal(t, want, NormalizePaymentMethod(raw), "raw=%q", raw)
	}
}

func TestRequiresReference(t *testing.T) {
	assert.False(t, PaymentCash.RequiresReference())
	assert.True(t, PaymentCard.RequiresReference())
	assert.True(t, PaymentTransfer.RequiresReference())
	assert.True(t, PaymentMixed.RequiresReference())
}

func TestReferenceNoteRoundTrip(t *testing.T) {
	note := EncodeReferenceNote("  ABC123 ")
	assert.Equal(t, "Ref: ABC123", note)
	assert.Equal(t, "ABC123", ParseReferenceNote(note))
	assert.Equal(t, "X-9", ParseReferenceNote("REF:X-9"))
	assert.Equal(t, "", ParseReferenceNote("paid in full"))
	assert.Equal(t, "", EncodeReferenceNote("   "))
}

func TestReferenceNoteKeepsMultilineReferences(t *testing.T) {
	note := EncodeReferenceNote("AB\nC\t 7")
	assert.Equal(t, "Ref: AB C 7", note)
	assert.Equal(t, "AB C 7", ParseReferenceNote(note))
	assert.Equal(t, "AB\nC", ParseReferenceNote("Ref: AB\nC"))
	assert.Equal(t, "", ParseReferenceNote("paid, see ref: 42"))
}

func TestStoredPaymentMethod(t *testing.T) {
	cases := map[string]PaymentMethod{
		"CASH":      PaymentCash,
		" efectivo": PaymentCash,
		"":          PaymentCash,
		"Tarjeta":   PaymentCard,
		"Crypto":    PaymentMethod("crypto"),
	}
	for raw, want := range cases {
		assert.Equal(t, want, StoredPaymentMethod(raw), "raw %q", raw)
	}

	assert.Equal(t, []string{"cash", "efectivo"}, StoredSpellings(PaymentCash))
	assert.Equal(t, []string{"mixed", "mixto"}, StoredSpellings(PaymentMixed))
	assert.Equal(t, []string{"crypto"}, StoredSpellings(PaymentMethod("crypto")))
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "3F2A9C1B", ShortID("3f2a9c1b-1111-4222-8333-444455556666"))
	assert.Equal(t, "ABCDEF12", ShortID("abcdef1234567890"))
	assert.Equal(t, "", ShortID(" "))
}

func TestErrorClasses(t *testing.T) {
	assert.True(t, errors.Is(ErrEmptyCart, ErrValidation))
	assert.True(t, errors.Is(ErrExceedsStock, ErrStock))
	assert.True(t, errors.Is(ErrTokenCollision, ErrToken))
	assert.False(t, errors.Is(ErrOutOfStock, ErrValidation))
}

func TestParsePaymentMethodFilter(t *testing.T) {
	method, err := ParsePaymentMethodFilter(" ALL ")
	assert.NoError(t, err)
	assert.Equal(t, PaymentMethod(""), method)

	method, err = ParsePaymentMethodFilter("tarjeta")
	assert.NoError(t, err)
	assert.Equal(t, PaymentCard, method)

	_, err = ParsePaymentMethodFilter("bitcoin")
	assert.ErrorIs(t, err, ErrValidation)
}
