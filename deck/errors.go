package deck

import (
	"errors"
	"fmt"
)

var (
	// ErrConnection is the base of every transport related error.
	ErrConnection = errors.New("deck: connection error")

	// ErrNotConnected indicates that the client has no transport to write to.
	ErrNotConnected = fmt.Errorf("%w: not connected", ErrConnection)

	// ErrConnClosed indicates that the transport was closed or the connection was lost.
	ErrConnClosed = fmt.Errorf("%w: connection closed", ErrConnection)
)

var (
	// ErrDecode indicates that a byte received from the deck is not a known state code.
	ErrDecode = errors.New("deck: decode error")

	// ErrSubscription indicates a transition that violates the subscription protocol.
	ErrSubscription = errors.New("deck: subscription error")

	// ErrTimeout indicates that a wait did not complete within its timeout.
	ErrTimeout = errors.New("deck: timeout")

	// ErrSyntheticState is returned when a client-side state is encoded for the wire.
	ErrSyntheticState = errors.New("deck: synthetic state has no wire encoding")

	// ErrReceiverClosed indicates that a receiver was closed and its queue is drained.
	ErrReceiverClosed = errors.New("deck: receiver closed")

	// ErrUnknownState indicates an unknown state name or value.
	ErrUnknownState = errors.New("deck: unknown state")

	// ErrUnknownCommand indicates an unknown command name.
	ErrUnknownCommand = errors.New("deck: unknown command")
)

// DecodeError reports a byte that is not a known state code.
type DecodeError struct {
	Code byte
	// Offset is the position of Code in the decoded buffer.
	Offset int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("deck: unknown state code 0x%02X at offset %d", e.Code, e.Offset)
}

// Is makes errors.Is(err, ErrDecode) match.
func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

// SubscriptionError reports a state the client refused because of the subscription protocol.
// The client state is left at Current.
type SubscriptionError struct {
	Current  State
	Incoming State
}

func (e *SubscriptionError) Error() string {
	switch e.Current {
	case Unsubscribing:
		return fmt.Sprintf("deck: expected a paused state while unsubscribing, got %s", e.Incoming)
	case Unsubscribed:
		return fmt.Sprintf("deck: unexpected %s while unsubscribed", e.Incoming)
	default:
		return fmt.Sprintf("deck: illegal transition %s -> %s", e.Current, e.Incoming)
	}
}

// Is makes errors.Is(err, ErrSubscription) match.
func (e *SubscriptionError) Is(target error) bool {
	return target == ErrSubscription
}
