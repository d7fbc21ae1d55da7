package services

import (
	"errors"
	"fmt"

	"bistro/server/internal/models"
)

var (
	ErrInvalidCart           = errors.New("invalid cart")
	ErrServiceBusy           = errors.New("service is busy")
	ErrInsufficientStock     = errors.New("insufficient stock")
	ErrInsufficientCash      = errors.New("insufficient cash")
	ErrPaymentGatewayFailure = errors.New("payment gateway failure")
	ErrConsistencyViolation  = errors.New("stock consistency violation")
	ErrDuplicateSubmission   = errors.New("duplicate submission")
	ErrUnknownIngredient     = errors.New("unknown ingredient")
	ErrInvalidRecipe         = errors.New("invalid recipe")
	ErrIngredientInUse       = errors.New("ingredient is referenced by a recipe")
	ErrNotFound              = errors.New("not found")
	ErrForbidden             = errors.New("forbidden")
	ErrInvalidInput          = errors.New("invalid input")
	ErrReservationNotHeld    = errors.New("reservation is no longer held")
	ErrOrderImmutable        = models.ErrOrderImmutable
)

// RejectReason код причины отказа в заказе
type RejectReason string

const (
	ReasonInvalidCart           RejectReason = "InvalidCart"
	ReasonServiceBusy           RejectReason = "ServiceBusy"
	ReasonInsufficientStock     RejectReason = "InsufficientStock"
	ReasonInsufficientCash      RejectReason = "InsufficientCash"
	ReasonPaymentGatewayFailure RejectReason = "PaymentGatewayFailure"
	ReasonDuplicateSubmission   RejectReason = "DuplicateSubmission"
	ReasonConsistencyViolation  RejectReason = "ConsistencyViolation"
)

var reasonSentinels = map[RejectReason]error{
	ReasonInvalidCart:           ErrInvalidCart,
	ReasonServiceBusy:           ErrServiceBusy,
	ReasonInsufficientStock:     ErrInsufficientStock,
	ReasonInsufficientCash:      ErrInsufficientCash,
	ReasonPaymentGatewayFailure: ErrPaymentGatewayFailure,
	ReasonDuplicateSubmission:   ErrDuplicateSubmission,
	ReasonConsistencyViolation:  ErrConsistencyViolation,
}

// RejectionError отказ в заказе с кодом причины и деталями
type RejectionError struct {
	Reason  RejectReason
	Details []string
	Err     error
}

func (e *RejectionError) Error() string {
	if len(e.Details) == 0 {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %v %v", e.Reason, e.Err, e.Details)
}

func (e *RejectionError) Unwrap() error {
	return e.Err
}

// Reject создает отказ. Если err не несет сентинел причины, он добавляется
func Reject(reason RejectReason, err error, details ...string) *RejectionError {
	sentinel := reasonSentinels[reason]
	switch {
	case err == nil:
		err = sentinel
	case sentinel != nil && !errors.Is(err, sentinel):
		err = fmt.Errorf("%w: %w", sentinel, err)
	}
	return &RejectionError{Reason: reason, Details: details, Err: err}
}

// ReasonOf возвращает код причины для ошибки ядра
func ReasonOf(err error) (RejectReason, bool) {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej.Reason, true
	}
	for reason, sentinel := range reasonSentinels {
		if errors.Is(err, sentinel) {
			return reason, true
		}
	}
	return "", false
}
