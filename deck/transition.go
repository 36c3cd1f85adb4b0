package deck

// transition computes the state committed when incoming arrives while the client is in prev.
//
//	prev           incoming            committed
//	Unsubscribing  PausedA, PausedB    Unsubscribed
//	Unsubscribing  anything else       error
//	Unsubscribed   Subscribing         Subscribing
//	Unsubscribed   anything else       error
//	any other      s                   s
//
// On error the client state must stay at prev.
func transition(prev, incoming State) (State, error) {
	switch prev {
	case Unsubscribing:
		if incoming.IsPaused() {
			return Unsubscribed, nil
		}
	case Unsubscribed:
		if incoming == Subscribing {
			return Subscribing, nil
		}
	default:
		return incoming, nil
	}

	return prev, &SubscriptionError{Current: prev, Incoming: incoming}
}
