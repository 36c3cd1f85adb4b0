package deck

import (
	"fmt"
)

// State is a state of the deck.
//
// Positive values are the codes reported on the wire. The negative values are synthetic
// states tracked by the client while a subscription handshake is in flight; they have no
// wire encoding.
type State int16

// States reported by the deck.
const (
	PlayingA       State = 0x0A
	PausedA        State = 0x0C
	PlayingB       State = 0x14
	Subscribed     State = 0x15
	PausedB        State = 0x16
	FastForwarding State = 0x1E
	Rewinding      State = 0x28
	Stopped        State = 0x32
	Ejected        State = 0x3C
)

// Synthetic states.
const (
	Subscribing   State = -1
	Unsubscribing State = -2
	Unsubscribed  State = -3
)

var stateNames = map[State]string{
	PlayingA:       "PlayingA",
	PausedA:        "PausedA",
	PlayingB:       "PlayingB",
	Subscribed:     "Subscribed",
	PausedB:        "PausedB",
	FastForwarding: "FastForwarding",
	Rewinding:      "Rewinding",
	Stopped:        "Stopped",
	Ejected:        "Ejected",
	Subscribing:    "Subscribing",
	Unsubscribing:  "Unsubscribing",
	Unsubscribed:   "Unsubscribed",
}

// States returns every state, wire states first in code order.
func States() []State {
	return []State{
		PlayingA, PausedA, PlayingB, Subscribed, PausedB,
		FastForwarding, Rewinding, Stopped, Ejected,
		Subscribing, Unsubscribing, Unsubscribed,
	}
}

// DecodeState maps a wire byte to its State.
//
// It returns a *DecodeError, matching ErrDecode, for any byte that is not a known state code.
func DecodeState(b byte) (State, error) {
	s, ok := lookupState(b)
	if !ok {
		return 0, &DecodeError{Code: b}
	}

	return s, nil
}

func lookupState(b byte) (State, bool) {
	s := State(b)
	_, ok := stateNames[s]

	return s, ok
}

// DecodeStates decodes every byte of buf. It fails on the first unknown byte.
func DecodeStates(buf []byte) ([]State, error) {
	states := make([]State, 0, len(buf))
	for i, b := range buf {
		s, ok := lookupState(b)
		if !ok {
			return nil, &DecodeError{Code: b, Offset: i}
		}
		states = append(states, s)
	}

	return states, nil
}

// Byte returns the wire byte of s, or ErrSyntheticState for the synthetic states.
func (s State) Byte() (byte, error) {
	if s.IsSynthetic() {
		return 0, fmt.Errorf("%w: %s", ErrSyntheticState, s)
	}
	if _, ok := stateNames[s]; !ok {
		return 0, fmt.Errorf("%w: %d", ErrUnknownState, int16(s))
	}

	return byte(s), nil
}

// IsSynthetic reports whether s is a client-side state with no wire encoding.
func (s State) IsSynthetic() bool { return s < 0 }

// IsPaused reports whether s is one of the two paused codes.
func (s State) IsPaused() bool { return s == PausedA || s == PausedB }

// String returns the name of the state.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}

	return fmt.Sprintf("State(%d)", int16(s))
}

// MarshalText encodes the state as its name.
func (s State) MarshalText() ([]byte, error) {
	if _, ok := stateNames[s]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownState, int16(s))
	}

	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name, see ParseState.
func (s *State) UnmarshalText(text []byte) error {
	parsed, err := ParseState(string(text))
	if err != nil {
		return err
	}
	*s = parsed

	return nil
}

// ParseState returns the state with the given name. Matching ignores case, '-' and '_';
// "ready" is accepted for Subscribed.
func ParseState(name string) (State, error) {
	key := normalizeName(name)
	if key == "ready" {
		return Subscribed, nil
	}

	for s, n := range stateNames {
		if normalizeName(n) == key {
			return s, nil
		}
	}

	return 0, fmt.Errorf("%w: %q", ErrUnknownState, name)
}
