// Package fault is the closed set of failure categories shared by the refill
// and score flows, with the messages and status codes shown to callers.
package fault

import (
	"errors"
	"fmt"
	"net/http"
)

// Category is a stable, wire-visible failure code.
type Category string

const (
	PaymentRequired     Category = "payment_required"
	InvalidPaymentProof Category = "invalid_payment_proof"
	ScoreExceedsMax     Category = "score_exceeds_max"
	InvalidTimeWindow   Category = "invalid_time_window"
	DuplicateRunID      Category = "duplicate_run_id"
	CooldownActive      Category = "cooldown_active"
	LedgerPaused        Category = "ledger_paused"
	InsufficientFunds   Category = "insufficient_funds"
	TransientNetwork    Category = "transient_network"
	InvalidPlayer       Category = "invalid_player"
	InvalidHealthValue  Category = "invalid_health_value"
	InvalidRequest      Category = "invalid_request"
	Unknown             Category = "unknown"
)

var messages = map[Category]string{
	PaymentRequired:     "payment required",
	InvalidPaymentProof: "payment could not be verified",
	ScoreExceedsMax:     "score exceeds maximum allowed",
	InvalidTimeWindow:   "invalid game session time range",
	DuplicateRunID:      "this session id was already used",
	CooldownActive:      "please wait before submitting again",
	LedgerPaused:        "submissions are temporarily paused",
	InsufficientFunds:   "insufficient funds for transaction",
	TransientNetwork:    "ledger is unreachable, try again later",
	InvalidPlayer:       "invalid player address",
	InvalidHealthValue:  "invalid health value",
	InvalidRequest:      "invalid request",
	Unknown:             "submission failed",
}

// Message returns the user-visible text for c.
func Message(c Category) string {
	if m, ok := messages[c]; ok {
		return m
	}
	return messages[Unknown]
}

// HTTPStatus maps a category to the response code used by the API.
func HTTPStatus(c Category) int {
	switch c {
	case PaymentRequired:
		return http.StatusPaymentRequired
	case InvalidPaymentProof, ScoreExceedsMax, InvalidTimeWindow,
		InvalidPlayer, InvalidHealthValue, InvalidRequest:
		return http.StatusBadRequest
	case DuplicateRunID:
		return http.StatusConflict
	case CooldownActive:
		return http.StatusTooManyRequests
	case LedgerPaused, InsufficientFunds:
		return http.StatusServiceUnavailable
	case TransientNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified failure. Raw keeps the original cause for
// diagnostics. TxRef is set when a ledger write was broadcast before the
// failure, in which case the write may still land.
type Error struct {
	Category Category
	Raw      error
	TxRef    string
}

func New(c Category, format string, args ...any) *Error {
	return &Error{Category: c, Raw: fmt.Errorf(format, args...)}
}

func Wrap(c Category, err error) *Error {
	return &Error{Category: c, Raw: err}
}

func (e *Error) Error() string {
	if e.Raw == nil {
		return string(e.Category)
	}
	return string(e.Category) + ": " + e.Raw.Error()
}

func (e *Error) Unwrap() error { return e.Raw }

// Details is the raw cause, for the "details" field of error responses.
func (e *Error) Details() string {
	if e.Raw == nil {
		return ""
	}
	return e.Raw.Error()
}

// Retryable reports whether resending the same request is safe and useful.
// A transient failure after broadcast is not: the first write may confirm.
func (e *Error) Retryable() bool {
	return e.Category == TransientNetwork && e.TxRef == ""
}

// CategoryOf returns the category carried by err, or Unknown.
func CategoryOf(err error) Category {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Category
	}
	return Unknown
}
