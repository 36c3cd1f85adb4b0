package service

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-plusdeck/config"
	"github.com/arloliu/go-plusdeck/deck"
	"github.com/arloliu/go-plusdeck/decktest"
)

type fakeEmitter struct {
	mu      sync.Mutex
	signals []string
}

func (e *fakeEmitter) Emit(path dbus.ObjectPath, name string, values ...any) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if path != ObjectPath || name != StateSignal || len(values) != 1 {
		return nil
	}
	e.signals = append(e.signals, values[0].(string))

	return nil
}

func (e *fakeEmitter) Signals() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([]string(nil), e.signals...)
}

type emulatorConnector struct {
	mu      sync.Mutex
	em      *decktest.Emulator
	ports   []string
	connect int
}

func (c *emulatorConnector) Connect(_ context.Context, cfg *config.Config) (*deck.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.connect++
	c.ports = append(c.ports, cfg.Port)
	client, _, err := c.em.Connect()

	return client, err
}

func newTestService(t *testing.T) (*Service, *fakeEmitter, *emulatorConnector, string) {
	t.Helper()

	file := filepath.Join(t.TempDir(), "plusdeck.yaml")
	require.NoError(t, os.WriteFile(file, []byte("port: /dev/ttyEMU0\n"), 0o644))

	emitter := &fakeEmitter{}
	conn := &emulatorConnector{em: decktest.New()}
	s := New(file, emitter, WithConnector(conn.Connect))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Start(ctx))
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	return s, emitter, conn, file
}

func TestService_EmitsStates(t *testing.T) {
	require := require.New(t)

	s, emitter, conn, _ := newTestService(t)
	require.Equal([]string{"/dev/ttyEMU0"}, conn.ports)

	obj := object{s: s}
	require.Nil(obj.PlayA())
	require.Eventually(func() bool {
		state, dErr := obj.CurrentState()
		return dErr == nil && state == "PlayingA"
	}, time.Second, 5*time.Millisecond)

	require.Eventually(func() bool {
		signals := emitter.Signals()
		return len(signals) > 0 && signals[len(signals)-1] == "PlayingA"
	}, time.Second, 5*time.Millisecond)
	require.Contains(emitter.Signals(), "Subscribed")
}

func TestService_Commands(t *testing.T) {
	require := require.New(t)

	s, _, conn, file := newTestService(t)
	obj := object{s: s}

	for _, call := range []func() *dbus.Error{
		obj.PlayB, obj.Pause, obj.FastForwardA, obj.FastForwardB,
		obj.RewindA, obj.RewindB, obj.Stop, obj.Eject,
	} {
		require.Nil(call())
	}

	require.Eventually(func() bool { return len(conn.em.Commands()) == 9 }, time.Second, 5*time.Millisecond)
	require.Equal([]deck.Command{
		deck.Subscribe, deck.PlayB, deck.Pause, deck.FastForward, deck.Rewind,
		deck.Rewind, deck.FastForward, deck.Stop, deck.Eject,
	}, conn.em.Commands())

	name, dErr := obj.ConfigFile()
	require.Nil(dErr)
	require.Equal(file, name)
}

func TestService_WaitForErrors(t *testing.T) {
	require := require.New(t)

	s, _, _, _ := newTestService(t)
	obj := object{s: s}

	dErr := obj.WaitFor("Recording", 1)
	require.NotNil(dErr)
	require.Equal(ErrorNameInvalidArgs, dErr.Name)

	dErr = obj.WaitFor("PlayingB", 0.05)
	require.NotNil(dErr)
	require.Equal(ErrorNameTimeout, dErr.Name)
}

func TestService_Reload(t *testing.T) {
	require := require.New(t)

	s, _, conn, file := newTestService(t)
	first := s.Client()

	require.NoError(os.WriteFile(file, []byte("port: /dev/ttyEMU1\n"), 0o644))
	require.Nil(object{s: s}.Reload())

	require.Equal(2, conn.connect)
	require.Equal([]string{"/dev/ttyEMU0", "/dev/ttyEMU1"}, conn.ports)
	require.NotSame(first, s.Client())
	<-first.Closed()
	// the deck follows Subscribed with its transport state right away
	require.NotContains([]deck.State{deck.Unsubscribed, deck.Subscribing}, s.Client().State())
}

// silentTransport accepts every write and never answers.
type silentTransport struct{}

func (silentTransport) Write(p []byte) (int, error) { return len(p), nil }
func (silentTransport) Close() error                { return nil }

func TestService_ReloadOntoSilentDeck(t *testing.T) {
	require := require.New(t)

	s, _, _, _ := newTestService(t)
	first := s.Client()
	s.connect = func(context.Context, *config.Config) (*deck.Client, error) {
		return deck.NewClient(silentTransport{})
	}

	reloaded := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		reloaded <- s.Reload(ctx)
	}()

	obj := object{s: s}
	require.Eventually(func() bool {
		state, dErr := obj.CurrentState()
		return dErr == nil && state == "Subscribing"
	}, time.Second, 5*time.Millisecond)
	require.NotSame(first, s.Client())
	require.Nil(obj.Stop())

	select {
	case err := <-reloaded:
		require.ErrorIs(err, context.DeadlineExceeded)
		require.Equal(ErrorNameTimeout, toDBusError(err).Name)
	case <-time.After(2 * time.Second):
		require.Fail("reload did not return")
	}

	// replacing the client is not a lost connection
	require.Never(func() bool {
		select {
		case <-s.Done():
			return true
		default:
			return false
		}
	}, 50*time.Millisecond, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(s.Close(ctx))
	require.NoError(ctx.Err())
	require.Nil(s.Client())
}

func TestService_DoneOnConnectionLost(t *testing.T) {
	require := require.New(t)

	s, _, _, _ := newTestService(t)
	require.NoError(s.Err())

	s.Client().ConnectionLost(errors.New("unplugged"))

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		require.Fail("service did not report the lost deck")
	}
	require.ErrorIs(s.Err(), ErrConnectionLost)
}

func TestService_DoneOnClose(t *testing.T) {
	require := require.New(t)

	s, _, _, _ := newTestService(t)
	require.NoError(s.Close(context.Background()))

	<-s.Done()
	require.NoError(s.Err())
}

func TestSecondsToDuration(t *testing.T) {
	require := require.New(t)

	require.Equal(1500*time.Millisecond, secondsToDuration(1.5))
	require.Zero(secondsToDuration(0))
	require.Zero(secondsToDuration(-3))
	require.Zero(secondsToDuration(math.NaN()))
	require.Zero(secondsToDuration(math.Inf(1)))
	require.Zero(secondsToDuration(1e300))
	require.Zero(secondsToDuration(maxTimeoutSeconds))
	require.Equal(24*time.Hour, secondsToDuration(86400))
}

func TestService_WaitForHugeTimeout(t *testing.T) {
	require := require.New(t)

	s, _, _, _ := newTestService(t)
	obj := object{s: s}

	waited := make(chan *dbus.Error, 1)
	go func() { waited <- obj.WaitFor("PlayingA", 1e300) }()

	// the waiter registers asynchronously, so keep entering PlayingA
	var dErr *dbus.Error
	require.Eventually(func() bool {
		if obj.Stop() != nil || obj.PlayA() != nil {
			return false
		}
		select {
		case dErr = <-waited:
			return true
		default:
			return false
		}
	}, time.Second, 20*time.Millisecond)
	require.Nil(dErr)
}

func TestService_Close(t *testing.T) {
	require := require.New(t)

	s, _, conn, _ := newTestService(t)
	client := s.Client()

	require.NoError(s.Close(context.Background()))
	require.NoError(s.Close(context.Background()))
	<-client.Closed()
	require.Nil(s.Client())
	require.Equal(deck.Unsubscribe, conn.em.Commands()[len(conn.em.Commands())-1])

	dErr := object{s: s}.PlayA()
	require.NotNil(dErr)
	require.Equal(ErrorNameConnection, dErr.Name)
}

func TestParseStateSignal(t *testing.T) {
	require := require.New(t)

	state, ok := parseStateSignal(&dbus.Signal{Name: StateSignal, Body: []any{"Ejected"}})
	require.True(ok)
	require.Equal(deck.Ejected, state)

	_, ok = parseStateSignal(&dbus.Signal{Name: "other.Signal", Body: []any{"Ejected"}})
	require.False(ok)
	_, ok = parseStateSignal(&dbus.Signal{Name: StateSignal, Body: []any{42}})
	require.False(ok)
	_, ok = parseStateSignal(nil)
	require.False(ok)
}

func TestIntrospection(t *testing.T) {
	require := require.New(t)

	node := introspection()
	require.Len(node.Interfaces, 2)

	var names []string
	for _, m := range node.Interfaces[1].Methods {
		names = append(names, m.Name)
	}
	require.ElementsMatch([]string{
		"PlayA", "PlayB", "FastForwardA", "FastForwardB", "RewindA", "RewindB",
		"Pause", "Stop", "Eject", "WaitFor", "CurrentState", "ConfigFile", "Reload",
	}, names)
}
