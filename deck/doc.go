// Package deck implements the client side of the Plus Deck 2C serial protocol.
//
// # Protocol Overview
//
// The deck speaks a one-byte protocol in both directions. The host sends single-byte
// commands (play, pause, subscribe, ...) and the deck answers asynchronously with
// single-byte state codes. There is no framing, correlation or acknowledgement: a state
// byte may be the answer to a command, a change made with the front-panel buttons, or a
// periodic re-announcement of the current state (heartbeat).
//
// The deck only reports states while subscribed. Sending Subscribe makes it answer with
// Subscribed (0x15, "ready") and then stream states; sending Unsubscribe makes it emit
// exactly one paused code before going silent.
//
// # Client
//
// A [Client] owns the transport of one physical connection and turns the inbound byte
// stream into a consistent state model. Three synthetic states that never appear on the
// wire (Subscribing, Unsubscribing, Unsubscribed) track the handshake in flight.
//
// State changes are delivered to:
//
//   - listeners registered with [Client.On], [Client.Once] or [Client.AddListener],
//   - every [Receiver] created by [Client.Subscribe], each with its own ordered queue,
//   - [Waiter] values created by [Client.WaitFor].
//
// Listeners and receivers only see changes. The [KindReport] notification fires for every
// decoded byte, repeated ones included, for callers that need the heartbeat.
//
// # Transport
//
// The client does not open ports. A transport collaborator (see the serialport package)
// implements [Transport], calls [Client.OnBytesReceived] with every chunk it reads and
// [Client.ConnectionLost] when the link drops.
package deck
