package serialport

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"

	"github.com/arloliu/go-plusdeck/deck"
	"github.com/arloliu/go-plusdeck/decktest"
	"github.com/arloliu/go-plusdeck/logger"
)

func TestMain(m *testing.M) {
	level, err := logger.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		level = logger.InfoLevel
	}
	logger.SetLevel(level)

	os.Exit(m.Run())
}

// newEmulatedLink returns a link whose far end is served by an emulator.
func newEmulatedLink(t *testing.T, em *decktest.Emulator, opts ...LinkOption) *Link {
	t.Helper()

	local, remote := net.Pipe()
	ctx, cancel := context.WithCancel(context.Background())

	served := make(chan struct{})
	go func() {
		defer close(served)
		_ = em.Serve(ctx, remote)
	}()

	link, err := NewLink(context.Background(), local, opts...)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = link.Close()
		cancel()
		_ = remote.Close()
		<-served
	})

	return link
}

func TestLink_SubscribeAndPlay(t *testing.T) {
	require := require.New(t)

	em := decktest.New()
	link := newEmulatedLink(t, em)
	client := link.Client()
	require.Equal(OpenedState, link.State())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	rcv, err := client.Subscribe(ctx)
	require.NoError(err)
	require.NoError(rcv.Expect(ctx, deck.Stopped, time.Second))

	require.NoError(client.PlayA())
	require.NoError(rcv.Expect(ctx, deck.PlayingA, time.Second))
	require.Equal([]deck.Command{deck.Subscribe, deck.PlayA}, em.Commands())

	metrics := link.GetMetrics()
	require.Equal(uint64(2), metrics.BytesWritten.Load())
	require.GreaterOrEqual(metrics.BytesRead.Load(), uint64(3))
}

func TestLink_ContinuesAfterBadChunk(t *testing.T) {
	require := require.New(t)

	em := decktest.New()
	link := newEmulatedLink(t, em)
	client := link.Client()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := client.Subscribe(ctx)
	require.NoError(err)

	em.Inject(0x99)
	require.Eventually(func() bool { return link.GetMetrics().DecodeErrCount.Load() == 1 }, time.Second, 5*time.Millisecond)

	w := client.WaitFor(deck.PlayingB, time.Second)
	require.NoError(client.PlayB())
	require.NoError(w.Wait(ctx))
}

func TestLink_CountsProtocolErrors(t *testing.T) {
	require := require.New(t)

	em := decktest.New()
	link := newEmulatedLink(t, em)

	// the deck reports while the client is not subscribed
	stopped, err := deck.Stopped.Byte()
	require.NoError(err)
	em.Inject(stopped)
	require.Eventually(func() bool { return link.GetMetrics().ProtocolErrCount.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(deck.Unsubscribed, link.Client().State())
}

func TestLink_RemoteCloseTearsDownClient(t *testing.T) {
	require := require.New(t)

	local, remote := net.Pipe()
	link, err := NewLink(context.Background(), local)
	require.NoError(err)
	defer link.Close()

	w := link.Client().WaitFor(deck.Subscribed, 0)

	require.NoError(remote.Close())

	select {
	case <-link.Done():
	case <-time.After(time.Second):
		require.Fail("read loop did not exit")
	}
	<-link.Client().Closed()
	require.NoError(link.Client().Err())
	require.ErrorIs(w.Wait(context.Background()), deck.ErrConnClosed)

	_, err = link.Write([]byte{deck.PlayA.Byte()})
	require.ErrorIs(err, deck.ErrConnClosed)
	require.ErrorIs(link.Client().PlayA(), deck.ErrConnection)
}

func TestLink_CloseIsIdempotent(t *testing.T) {
	require := require.New(t)

	local, remote := net.Pipe()
	defer remote.Close()

	link, err := NewLink(context.Background(), local)
	require.NoError(err)

	require.NoError(link.Client().Close())
	require.NoError(link.Close())
	require.NoError(link.Close())
	require.Equal(ClosedState, link.State())

	select {
	case <-link.Done():
	default:
		require.Fail("read loop still running")
	}
}

func TestLink_ContextClosesLink(t *testing.T) {
	require := require.New(t)

	local, remote := net.Pipe()
	defer remote.Close()

	ctx, cancel := context.WithCancel(context.Background())
	link, err := NewLink(ctx, local)
	require.NoError(err)

	cancel()
	require.Eventually(func() bool { return link.State() == ClosedState }, time.Second, 5*time.Millisecond)
	<-link.Client().Closed()
}

// failingStream fails every read with a device error.
type failingStream struct {
	readErr error
	closed  chan struct{}
}

func (s *failingStream) Read([]byte) (int, error) {
	select {
	case <-s.closed:
		return 0, io.EOF
	default:
		return 0, s.readErr
	}
}

func (s *failingStream) Write(p []byte) (int, error) { return len(p), nil }

func (s *failingStream) Close() error {
	close(s.closed)
	return nil
}

func TestLink_ReadErrorIsConnectionLoss(t *testing.T) {
	require := require.New(t)

	errDevice := errors.New("input/output error")

	mockLogger := logger.NewMockLogger()
	mockLogger.On("With", mock.Anything).Maybe()
	mockLogger.On("Debug", mock.Anything, mock.Anything).Maybe()
	mockLogger.On("Info", mock.Anything, mock.Anything).Maybe()
	mockLogger.On("Error", "connection lost", mock.Anything).Once()

	link, err := NewLink(context.Background(), &failingStream{readErr: errDevice, closed: make(chan struct{})}, WithLogger(mockLogger))
	require.NoError(err)
	defer link.Close()

	<-link.Client().Closed()
	require.ErrorIs(link.Client().Err(), errDevice)
	require.Equal(uint64(1), link.GetMetrics().ReadErrCount.Load())

	mockLogger.AssertExpectations(t)
}

func TestLinkOptions(t *testing.T) {
	require := require.New(t)

	for _, opt := range []LinkOption{
		WithBaudRate(0),
		WithPollTimeout(0),
		WithCloseTimeout(-time.Second),
		WithLogger(nil),
	} {
		_, err := newLinkConfig(opt)
		require.Error(err)
	}

	cfg, err := newLinkConfig(
		WithBaudRate(19200),
		WithPollTimeout(10*time.Millisecond),
		WithCloseTimeout(time.Second),
		WithClientOptions(deck.WithReceiverCapacity(4)),
	)
	require.NoError(err)
	require.Equal(19200, cfg.baudRate)
	require.Equal(10*time.Millisecond, cfg.pollTimeout)
	require.Equal(time.Second, cfg.closeTimeout)
	require.Len(cfg.clientOptions, 1)
}

func TestOpen_Errors(t *testing.T) {
	require := require.New(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Open(ctx, "/dev/null")
	require.ErrorIs(err, context.Canceled)

	_, err = Open(context.Background(), "/dev/plusdeck-does-not-exist")
	require.Error(err)
}

func TestIsDisconnection(t *testing.T) {
	require := require.New(t)

	require.False(isDisconnection(nil))
	require.True(isDisconnection(io.ErrClosedPipe))
	require.True(isDisconnection(net.ErrClosed))
	require.True(isDisconnection(errors.New("read /dev/ttyUSB0: input/output error")))
	// the zero code is PortBusy, a configuration problem
	require.False(isDisconnection(&serial.PortError{}))
	require.False(isDisconnection(errors.New("permission denied")))
}

func TestOpState(t *testing.T) {
	require := require.New(t)

	var st atomicOpState
	require.Equal(ClosedState, st.Get())
	require.False(st.ToOpened())
	require.True(st.ToOpening())
	require.False(st.ToOpening())
	require.True(st.ToOpened())
	require.True(st.ToOpened())
	require.True(st.ToClosing())
	require.False(st.ToClosing())
	require.True(st.ToClosed())
	require.True(st.ToClosed())
	require.Equal("Closed", st.Get().String())
}
