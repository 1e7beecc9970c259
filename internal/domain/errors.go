package domain

import (
	"errors"
	"fmt"
)

// Error classes. Every specific error below wraps exactly one of them so
// callers can branch with errors.Is on either level.
var (
	ErrValidation  = errors.New("validation error")
	ErrStock       = errors.New("stock error")
	ErrPersistence = errors.New("persistence error")
	ErrToken       = errors.New("token error")
)

var (
	ErrEmptyCart        = fmt.Errorf("%w: cart is empty", ErrValidation)
	ErrInvalidTotal     = fmt.Errorf("%w: total must be greater than zero", ErrValidation)
	ErrMissingReference = fmt.Errorf("%w: payment reference is required", ErrValidation)
	ErrInvalidDateRange = fmt.Errorf("%w: invalid date range", ErrValidation)
	ErrUnknownProduct   = fmt.Errorf("%w: unknown product", ErrValidation)
	ErrLineNotFound     = fmt.Errorf("%w: product is not in the cart", ErrValidation)
	ErrInvalidState     = fmt.Errorf("%w: operation not allowed in current checkout state", ErrValidation)
	ErrCommitInFlight   = fmt.Errorf("%w: a commit is already in flight", ErrValidation)
	ErrMissingIdentity  = fmt.Errorf("%w: identity is required", ErrValidation)
	ErrTooManyTerminals = fmt.Errorf("%w: too many open terminals", ErrValidation)

	ErrOutOfStock   = fmt.Errorf("%w: product is out of stock", ErrStock)
	ErrExceedsStock = fmt.Errorf("%w: quantity exceeds available stock", ErrStock)

	ErrInvalidToken   = fmt.Errorf("%w: invalid receipt token", ErrToken)
	ErrTokenCollision = fmt.Errorf("%w: receipt token collision", ErrToken)
)
