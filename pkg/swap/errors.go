package swap

import (
	"errors"
	"fmt"
	"strings"

	"signet-swap/pkg/approval"
	"signet-swap/pkg/client"
	"signet-swap/pkg/order"
	"signet-swap/pkg/price"
	"signet-swap/pkg/signing"
)

// ErrSwapInProgress is returned by Submit while another attempt is running
var ErrSwapInProgress = errors.New("a swap is already in progress")

// ErrInsufficientBalance is returned when the owner cannot cover the amount
var ErrInsufficientBalance = errors.New("insufficient balance")

// NetworkMismatchError means the wallet is on the wrong chain and could not
// be switched.
type NetworkMismatchError struct {
	Expected  uint64
	Actual    uint64
	ChainName string
	Err       error
}

func (e *NetworkMismatchError) Error() string {
	return fmt.Sprintf("wallet is on chain %d, expected %d (%s): %v", e.Actual, e.Expected, e.ChainName, e.Err)
}

func (e *NetworkMismatchError) Unwrap() error { return e.Err }

// UserMessage turns any pipeline error into text for the user
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var netErr *NetworkMismatchError
	if errors.As(err, &netErr) {
		name := netErr.ChainName
		if name == "" {
			name = "the correct network"
		}
		return fmt.Sprintf("Please switch to %s in your wallet", name)
	}

	var cacheErr *client.CacheSubmissionError
	if errors.As(err, &cacheErr) {
		switch cacheErr.Kind {
		case client.KindServiceDegraded:
			return fmt.Sprintf("The transaction cache is temporarily unavailable (HTTP %d). Your funds were not moved; please try again in a few minutes.", cacheErr.StatusCode)
		case client.KindUnreachable:
			return "Could not reach the transaction cache. Check your connection and try again."
		case client.KindBadResponse:
			return "The transaction cache returned an unexpected response. Please try again."
		}
		if cacheErr.Message != "" {
			return fmt.Sprintf("Order rejected by the transaction cache: %s", cacheErr.Message)
		}
		return fmt.Sprintf("Order rejected by the transaction cache (HTTP %d)", cacheErr.StatusCode)
	}

	var signErr *signing.SigningError
	if errors.As(err, &signErr) {
		if signErr.Rejected() {
			return "Signature request was rejected"
		}
		return "Failed to sign order: " + signErr.Reason
	}

	var approvalErr *approval.ApprovalError
	if errors.As(err, &approvalErr) {
		if errors.Is(err, approval.ErrReverted) {
			return "Token approval transaction reverted"
		}
		return "Token approval failed: " + rootCause(approvalErr)
	}

	var valErr *order.ValidationError
	if errors.As(err, &valErr) {
		return capitalize(valErr.Error())
	}

	switch {
	case errors.Is(err, ErrInsufficientBalance):
		return capitalize(err.Error())
	case errors.Is(err, price.ErrPriceUnavailable):
		return "Prices are unavailable right now; enter a target amount or try again shortly"
	}

	if msg := err.Error(); msg != "" {
		return capitalize(msg)
	}
	return "Unknown error"
}

func rootCause(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
