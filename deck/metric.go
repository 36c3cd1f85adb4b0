package deck

import (
	"sync/atomic"
)

// ClientMetrics contains atomic metrics for a deck client.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type ClientMetrics struct {
	// CommandSendCount indicates the number of command bytes written to the transport.
	CommandSendCount atomic.Uint64
	// CommandErrCount indicates the number of commands that failed.
	CommandErrCount atomic.Uint64

	// StateRecvCount indicates the number of state bytes decoded.
	StateRecvCount atomic.Uint64
	// StateChangeCount indicates the number of committed state changes.
	StateChangeCount atomic.Uint64
	// DecodeErrCount indicates the number of bytes that were not valid state codes.
	DecodeErrCount atomic.Uint64
	// ProtocolErrCount indicates the number of states rejected by the subscription protocol.
	ProtocolErrCount atomic.Uint64

	// ReceiverGauge indicates the number of registered receivers.
	ReceiverGauge atomic.Int64
	// ReceiverDropCount indicates the number of states dropped by full receiver queues.
	ReceiverDropCount atomic.Uint64
}

func (m *ClientMetrics) incCommandSendCount() {
	m.CommandSendCount.Add(1)
}

func (m *ClientMetrics) incCommandErrCount() {
	m.CommandErrCount.Add(1)
}

func (m *ClientMetrics) incStateRecvCount() {
	m.StateRecvCount.Add(1)
}

func (m *ClientMetrics) incStateChangeCount() {
	m.StateChangeCount.Add(1)
}

func (m *ClientMetrics) incDecodeErrCount() {
	m.DecodeErrCount.Add(1)
}

func (m *ClientMetrics) incProtocolErrCount() {
	m.ProtocolErrCount.Add(1)
}

func (m *ClientMetrics) incReceiverGauge() {
	m.ReceiverGauge.Add(1)
}

func (m *ClientMetrics) decReceiverGauge() {
	m.ReceiverGauge.Add(-1)
}

func (m *ClientMetrics) incReceiverDropCount() {
	m.ReceiverDropCount.Add(1)
}
