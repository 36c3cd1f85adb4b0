// Package serialport connects a deck.Client to a Plus Deck 2C over a serial port.
//
// A Link owns the port: it opens it at 9600 baud 8N1, creates the one deck.Client of the
// connection with the link as its transport, and runs the read loop feeding every chunk
// read from the port to deck.Client.OnBytesReceived. When the port fails or is closed the
// read loop ends and the client is torn down with deck.Client.ConnectionLost.
package serialport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/arloliu/go-plusdeck/deck"
	"github.com/arloliu/go-plusdeck/logger"
)

var (
	// ErrNoPorts indicates that no serial port was found.
	ErrNoPorts = errors.New("serialport: no serial ports found")

	// ErrCloseTimeout indicates that the read loop did not exit within the close timeout.
	ErrCloseTimeout = errors.New("serialport: close timeout")
)

// Link is an open connection to a deck.
type Link struct {
	name   string
	rwc    io.ReadWriteCloser
	cfg    *linkConfig
	logger logger.Logger
	client *deck.Client

	opState atomicOpState
	metrics LinkMetrics

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
	stopCtx   func() bool
}

var _ deck.Transport = (*Link)(nil)

// Open opens the serial port name and returns a link with a client ready to use.
// The link is closed when ctx ends.
func Open(ctx context.Context, name string, opts ...LinkOption) (*Link, error) {
	cfg, err := newLinkConfig(opts...)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	port, err := serial.Open(name, &serial.Mode{
		BaudRate: cfg.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("serialport: open %s: %w", name, err)
	}

	if err := port.SetReadTimeout(cfg.pollTimeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("serialport: set read timeout on %s: %w", name, err)
	}

	return newLink(ctx, name, port, cfg)
}

// NewLink returns a link over an already open byte stream, such as one end of a net.Pipe
// or a pseudo terminal. The link owns rwc and closes it on Close.
func NewLink(ctx context.Context, rwc io.ReadWriteCloser, opts ...LinkOption) (*Link, error) {
	cfg, err := newLinkConfig(opts...)
	if err != nil {
		return nil, err
	}

	return newLink(ctx, "stream", rwc, cfg)
}

func newLink(ctx context.Context, name string, rwc io.ReadWriteCloser, cfg *linkConfig) (*Link, error) {
	l := &Link{
		name:   name,
		rwc:    rwc,
		cfg:    cfg,
		logger: cfg.logger.With("port", name),
		done:   make(chan struct{}),
	}
	l.opState.ToOpening()

	clientOpts := append([]deck.Option{deck.WithLogger(l.logger)}, cfg.clientOptions...)
	client, err := deck.NewClient(l, clientOpts...)
	if err != nil {
		_ = rwc.Close()
		l.opState.ToClosing()
		l.opState.ToClosed()

		return nil, err
	}
	l.client = client

	l.opState.ToOpened()
	go l.readLoop()

	l.stopCtx = context.AfterFunc(ctx, func() {
		l.logger.Debug("context done, closing link")
		_ = l.client.Close()
	})

	l.logger.Info("link opened", "baudRate", cfg.baudRate)

	return l, nil
}

// Name returns the port name.
func (l *Link) Name() string { return l.name }

// Client returns the deck client of the link.
func (l *Link) Client() *deck.Client { return l.client }

// State returns the lifecycle state of the link.
func (l *Link) State() OpState { return l.opState.Get() }

// GetMetrics returns the metrics of the link.
func (l *Link) GetMetrics() *LinkMetrics { return &l.metrics }

// Done returns a channel closed once the read loop exited.
func (l *Link) Done() <-chan struct{} { return l.done }

// Write writes p to the port. It is called by the deck client.
func (l *Link) Write(p []byte) (int, error) {
	if !l.opState.IsOpened() {
		return 0, deck.ErrConnClosed
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	n, err := l.rwc.Write(p)
	l.metrics.addBytesWritten(n)
	if err != nil {
		l.metrics.incWriteErrCount()
		if isDisconnection(err) {
			return n, fmt.Errorf("%w: %w", deck.ErrConnClosed, err)
		}

		return n, fmt.Errorf("serialport: write: %w", err)
	}

	return n, nil
}

// Close closes the port and waits for the read loop to exit, at most the close timeout.
// The client of the link is torn down. Close is idempotent.
func (l *Link) Close() error {
	l.closeOnce.Do(func() {
		l.opState.ToClosing()
		if l.stopCtx != nil {
			l.stopCtx()
		}

		l.closeErr = l.rwc.Close()

		select {
		case <-l.done:
		case <-time.After(l.cfg.closeTimeout):
			l.logger.Warn("read loop did not exit", "timeout", l.cfg.closeTimeout)
			l.closeErr = errors.Join(l.closeErr, ErrCloseTimeout)
		}

		// no-op when the read loop already reported the loss
		l.client.ConnectionLost(nil)

		l.opState.ToClosed()
		l.logger.Info("link closed")
	})

	return l.closeErr
}

func (l *Link) readLoop() {
	var lost error
	defer func() {
		l.opState.ToClosing()
		close(l.done)
		l.client.ConnectionLost(lost)
	}()

	buf := make([]byte, readBufferSize)
	for {
		n, err := l.rwc.Read(buf)
		if n > 0 {
			l.metrics.addBytesRead(n)
			l.logger.Debug("bytes received", "data", fmt.Sprintf("% X", buf[:n]))
			l.handleChunk(buf[:n])
		}

		if err != nil {
			if l.opState.IsClosing() || errors.Is(err, io.EOF) || isClosedPipe(err) {
				return
			}
			l.metrics.incReadErrCount()
			lost = fmt.Errorf("serialport: read %s: %w", l.name, err)

			return
		}

		// a read timeout returns no data and no error
		if n == 0 && l.opState.IsClosing() {
			return
		}
	}
}

func (l *Link) handleChunk(data []byte) {
	err := l.client.OnBytesReceived(data)
	switch {
	case err == nil:
	case errors.Is(err, deck.ErrDecode):
		l.metrics.incDecodeErrCount()
		l.logger.Warn("discarded chunk with unknown state code", "error", err)
	case errors.Is(err, deck.ErrSubscription):
		l.metrics.incProtocolErrCount()
		l.logger.Warn("discarded chunk refused by the subscription protocol", "error", err)
	case errors.Is(err, deck.ErrConnClosed):
	default:
		l.logger.Error("failed to handle received bytes", "error", err)
	}
}

// DefaultPort returns the first serial port of the system.
func DefaultPort() (string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return "", fmt.Errorf("serialport: list ports: %w", err)
	}
	if len(ports) == 0 {
		return "", ErrNoPorts
	}

	return ports[0], nil
}

// isDisconnection reports whether err means the device went away.
func isDisconnection(err error) bool {
	if err == nil {
		return false
	}

	var code serial.PortErrorCode
	var portErr *serial.PortError
	var portErrVal serial.PortError
	switch {
	case errors.As(err, &portErr):
		code = portErr.Code()
	case errors.As(err, &portErrVal):
		code = portErrVal.Code()
	default:
		code = -1
	}

	if code >= 0 {
		switch code {
		case serial.PortNotFound, serial.PortClosed, serial.InvalidSerialPort:
			return true
		default:
			return false
		}
	}

	if isClosedPipe(err) {
		return true
	}

	msg := strings.ToLower(err.Error())

	return strings.Contains(msg, "input/output error") ||
		strings.Contains(msg, "no such device") ||
		strings.Contains(msg, "device not configured") ||
		strings.Contains(msg, "broken pipe")
}

func isClosedPipe(err error) bool {
	return errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed)
}
