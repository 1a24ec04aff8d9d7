package ilp

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Error codes recognized by spec.md §6/§7.
const (
	CodeUnreachable          = "F02"
	CodeAmountTooLarge       = "F08"
	CodeTimeout              = "R00"
	CodeInsufficientLiquidity = "T04"
)

// RejectError is a typed error the dispatcher converts directly into an ILP
// REJECT packet (spec.md §7 "Inside the ilp sub-protocol, thrown errors are
// converted to an ILP REJECT via the codec").
type RejectError struct {
	Code           string
	Message        string
	ReceivedAmount *uint256.Int
	MaximumAmount  *uint256.Int
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewUnreachableError reports a blocked account or missing channel (F02).
func NewUnreachableError(message string) *RejectError {
	return &RejectError{Code: CodeUnreachable, Message: message}
}

// NewAmountTooLargeError reports a PREPARE above maxPacketAmount (F08),
// carrying the amounts spec.md §4.5 check 2 requires on the error.
func NewAmountTooLargeError(received, maximum *uint256.Int) *RejectError {
	return &RejectError{
		Code:           CodeAmountTooLarge,
		Message:        fmt.Sprintf("packet amount %s exceeds maximum %s", received, maximum),
		ReceivedAmount: received,
		MaximumAmount:  maximum,
	}
}

// NewInsufficientLiquidityError reports insufficient bandwidth or escrow
// (T04, spec.md §4.5 checks 3 and 4).
func NewInsufficientLiquidityError(message string) *RejectError {
	return &RejectError{Code: CodeInsufficientLiquidity, Message: message}
}

// NewTimeoutError reports a PREPARE that expired before the data handler (or
// the settlement race) resolved (R00, spec.md §5).
func NewTimeoutError() *RejectError {
	return &RejectError{Code: CodeTimeout, Message: "packet expired before a response was produced"}
}

// ToReject converts a RejectError into a wire-ready Reject packet.
func (e *RejectError) ToReject() *Reject {
	return &Reject{Code: e.Code, Message: e.Message}
}
