package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/arloliu/go-plusdeck/deck"
)

// Client calls a running service over D-Bus.
type Client struct {
	conn *dbus.Conn
	obj  dbus.BusObject
}

// Connect connects to the service on the system bus, or the session bus when user is set.
func Connect(user bool) (*Client, error) {
	var (
		conn *dbus.Conn
		err  error
	)
	if user {
		conn, err = dbus.ConnectSessionBus()
	} else {
		conn, err = dbus.ConnectSystemBus()
	}
	if err != nil {
		return nil, fmt.Errorf("service: connect to bus: %w", err)
	}

	return NewClient(conn), nil
}

// NewClient returns a client using conn.
func NewClient(conn *dbus.Conn) *Client {
	return &Client{conn: conn, obj: conn.Object(BusName, ObjectPath)}
}

// Close closes the bus connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) call(ctx context.Context, method string, args ...any) *dbus.Call {
	return c.obj.CallWithContext(ctx, Interface+"."+method, 0, args...)
}

func (c *Client) PlayA(ctx context.Context) error { return c.call(ctx, "PlayA").Err }
func (c *Client) PlayB(ctx context.Context) error { return c.call(ctx, "PlayB").Err }
func (c *Client) FastForwardA(ctx context.Context) error {
	return c.call(ctx, "FastForwardA").Err
}
func (c *Client) FastForwardB(ctx context.Context) error {
	return c.call(ctx, "FastForwardB").Err
}
func (c *Client) RewindA(ctx context.Context) error { return c.call(ctx, "RewindA").Err }
func (c *Client) RewindB(ctx context.Context) error { return c.call(ctx, "RewindB").Err }
func (c *Client) Pause(ctx context.Context) error   { return c.call(ctx, "Pause").Err }
func (c *Client) Stop(ctx context.Context) error    { return c.call(ctx, "Stop").Err }
func (c *Client) Eject(ctx context.Context) error   { return c.call(ctx, "Eject").Err }

// Reload makes the service reconnect with its current configuration file.
func (c *Client) Reload(ctx context.Context) error { return c.call(ctx, "Reload").Err }

// WaitFor waits in the service for state. A zero timeout means none.
func (c *Client) WaitFor(ctx context.Context, state deck.State, timeout time.Duration) error {
	err := c.call(ctx, "WaitFor", state.String(), timeout.Seconds()).Err

	if errorName(err) == ErrorNameTimeout {
		return fmt.Errorf("%w: %w", deck.ErrTimeout, err)
	}

	return err
}

func errorName(err error) string {
	var dbusErr dbus.Error
	if errors.As(err, &dbusErr) {
		return dbusErr.Name
	}

	var dbusErrPtr *dbus.Error
	if errors.As(err, &dbusErrPtr) {
		return dbusErrPtr.Name
	}

	return ""
}

// CurrentState returns the state of the deck.
func (c *Client) CurrentState(ctx context.Context) (deck.State, error) {
	var name string
	if err := c.call(ctx, "CurrentState").Store(&name); err != nil {
		return 0, err
	}

	return deck.ParseState(name)
}

// ConfigFile returns the configuration file of the service.
func (c *Client) ConfigFile(ctx context.Context) (string, error) {
	var file string
	if err := c.call(ctx, "ConfigFile").Store(&file); err != nil {
		return "", err
	}

	return file, nil
}

// Subscribe streams the State signals of the service until ctx ends.
func (c *Client) Subscribe(ctx context.Context) (<-chan deck.State, error) {
	opts := []dbus.MatchOption{
		dbus.WithMatchObjectPath(ObjectPath),
		dbus.WithMatchInterface(Interface),
		dbus.WithMatchMember("State"),
	}
	if err := c.conn.AddMatchSignalContext(ctx, opts...); err != nil {
		return nil, fmt.Errorf("service: add match: %w", err)
	}

	signals := make(chan *dbus.Signal, 16)
	c.conn.Signal(signals)

	states := make(chan deck.State, 16)
	go func() {
		defer close(states)
		defer func() {
			c.conn.RemoveSignal(signals)
			_ = c.conn.RemoveMatchSignal(opts...)
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case sig, ok := <-signals:
				if !ok {
					return
				}
				state, ok := parseStateSignal(sig)
				if !ok {
					continue
				}
				select {
				case states <- state:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return states, nil
}

func parseStateSignal(sig *dbus.Signal) (deck.State, bool) {
	if sig == nil || sig.Name != StateSignal || len(sig.Body) != 1 {
		return 0, false
	}

	name, ok := sig.Body[0].(string)
	if !ok {
		return 0, false
	}

	state, err := deck.ParseState(name)
	if err != nil {
		return 0, false
	}

	return state, true
}
