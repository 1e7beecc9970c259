package domain

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "cash"
	PaymentCard     PaymentMethod = "card"
	PaymentTransfer PaymentMethod = "transfer"
	PaymentMixed    PaymentMethod = "mixed"
)

// CanonicalPaymentMethods is the display order used by reports.
var CanonicalPaymentMethods = []PaymentMethod{PaymentCash, PaymentCard, PaymentTransfer, PaymentMixed}

var paymentAliases = map[string]PaymentMethod{
	"cash":          PaymentCash,
	"efectivo":      PaymentCash,
	"card":          PaymentCard,
	"tarjeta":       PaymentCard,
	"transfer":      PaymentTransfer,
	"transferencia": PaymentTransfer,
	"mixed":         PaymentMixed,
	"mixto":         PaymentMixed,
}

// NormalizePaymentMethod maps raw operator input to a canonical method.
// Unrecognized input falls back to cash.
func NormalizePaymentMethod(raw string) PaymentMethod {
	if method, ok := paymentAliases[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return method
	}
	return PaymentCash
}

// StoredPaymentMethod reads a method column as written by any client. Known
// aliases map to their canonical method and blanks to cash; anything else
// is kept lower-cased so reports can still show it.
func StoredPaymentMethod(raw string) PaymentMethod {
	key := strings.ToLower(strings.TrimSpace(raw))
	if key == "" {
		return PaymentCash
	}
	if method, ok := paymentAliases[key]; ok {
		return method
	}
	return PaymentMethod(key)
}

// StoredSpellings lists the lower-cased column values StoredPaymentMethod
// reads as m, sorted.
func StoredSpellings(m PaymentMethod) []string {
	out := make([]string, 0, 2)
	for alias, method := range paymentAliases {
		if method == m {
			out = append(out, alias)
		}
	}
	if len(out) == 0 {
		out = append(out, strings.ToLower(string(m)))
	}
	sort.Strings(out)
	return out
}

func (m PaymentMethod) RequiresReference() bool {
	switch m {
	case PaymentCard, PaymentTransfer, PaymentMixed:
		return true
	default:
		return false
	}
}

func (m PaymentMethod) Label() string {
	switch m {
	case PaymentCash:
		return "Cash"
	case PaymentCard:
		return "Card"
	case PaymentTransfer:
		return "Transfer"
	case PaymentMixed:
		return "Mixed"
	case "":
		return "-"
	default:
		return string(m)
	}
}

const referenceNotePrefix = "Ref: "

var referenceNotePattern = regexp.MustCompile(`(?is)^ref\s*:\s*(.+)$`)

// NormalizeReference collapses every run of whitespace, line breaks
// included, into one space.
func NormalizeReference(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}

// EncodeReferenceNote stores a payment reference in the free-text note column.
func EncodeReferenceNote(reference string) string {
	reference = NormalizeReference(reference)
	if reference == "" {
		return ""
	}
	return referenceNotePrefix + reference
}

// ParseReferenceNote extracts the reference written by EncodeReferenceNote.
func ParseReferenceNote(note string) string {
	match := referenceNotePattern.FindStringSubmatch(strings.TrimSpace(note))
	if len(match) < 2 {
		return ""
	}
	return strings.TrimSpace(match[1])
}

// ParsePaymentMethodFilter reads a report filter. Empty and "all" mean no
// filter; unlike NormalizePaymentMethod, unknown values are rejected.
func ParsePaymentMethodFilter(raw string) (PaymentMethod, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if key == "" || key == "all" {
		return "", nil
	}
	method, ok := paymentAliases[key]
	if !ok {
		return "", fmt.Errorf("%w: unknown payment method %q", ErrValidation, raw)
	}
	return method, nil
}
