package serialport

import (
	"sync/atomic"
)

// LinkMetrics contains atomic metrics for a serial link.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type LinkMetrics struct {
	// BytesRead indicates the number of bytes read from the port.
	BytesRead atomic.Uint64
	// BytesWritten indicates the number of bytes written to the port.
	BytesWritten atomic.Uint64
	// ReadErrCount indicates the number of failed reads.
	ReadErrCount atomic.Uint64
	// WriteErrCount indicates the number of failed writes.
	WriteErrCount atomic.Uint64
	// DecodeErrCount indicates the number of chunks with an unknown state code.
	DecodeErrCount atomic.Uint64
	// ProtocolErrCount indicates the number of chunks refused by the subscription protocol.
	ProtocolErrCount atomic.Uint64
}

func (m *LinkMetrics) addBytesRead(n int) {
	m.BytesRead.Add(uint64(n))
}

func (m *LinkMetrics) addBytesWritten(n int) {
	m.BytesWritten.Add(uint64(n))
}

func (m *LinkMetrics) incReadErrCount() {
	m.ReadErrCount.Add(1)
}

func (m *LinkMetrics) incWriteErrCount() {
	m.WriteErrCount.Add(1)
}

func (m *LinkMetrics) incDecodeErrCount() {
	m.DecodeErrCount.Add(1)
}

func (m *LinkMetrics) incProtocolErrCount() {
	m.ProtocolErrCount.Add(1)
}
