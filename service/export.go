package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"github.com/arloliu/go-plusdeck/deck"
)

// D-Bus error names returned by the service.
const (
	ErrorNameConnection   = Interface + ".Error.Connection"
	ErrorNameSubscription = Interface + ".Error.Subscription"
	ErrorNameTimeout      = Interface + ".Error.Timeout"
	ErrorNameInvalidArgs  = Interface + ".Error.InvalidArgs"
	ErrorNameFailed       = Interface + ".Error.Failed"
)

// reloadTimeout bounds how long a Reload call waits for the reconnected deck.
const reloadTimeout = 5 * time.Second

// maxTimeoutSeconds is the largest timeout representable as a time.Duration.
const maxTimeoutSeconds = float64(math.MaxInt64) / float64(time.Second)

// object is the value exported on the bus. Every method is a D-Bus method.
type object struct {
	s *Service
}

func (o object) PlayA() *dbus.Error        { return o.command((*deck.Client).PlayA) }
func (o object) PlayB() *dbus.Error        { return o.command((*deck.Client).PlayB) }
func (o object) FastForwardA() *dbus.Error { return o.command((*deck.Client).FastForwardA) }
func (o object) FastForwardB() *dbus.Error { return o.command((*deck.Client).FastForwardB) }
func (o object) RewindA() *dbus.Error      { return o.command((*deck.Client).RewindA) }
func (o object) RewindB() *dbus.Error      { return o.command((*deck.Client).RewindB) }
func (o object) Pause() *dbus.Error        { return o.command((*deck.Client).Pause) }
func (o object) Stop() *dbus.Error         { return o.command((*deck.Client).Stop) }
func (o object) Eject() *dbus.Error        { return o.command((*deck.Client).Eject) }

// WaitFor takes the state name and a timeout in seconds; zero or less waits forever.
func (o object) WaitFor(state string, timeout float64) *dbus.Error {
	st, err := deck.ParseState(state)
	if err != nil {
		return dbus.NewError(ErrorNameInvalidArgs, []any{err.Error()})
	}

	return toDBusError(o.s.WaitFor(context.Background(), st, secondsToDuration(timeout)))
}

// secondsToDuration converts a D-Bus timeout. Values that are not positive, not a
// number or too large for a time.Duration mean no timeout.
func secondsToDuration(timeout float64) time.Duration {
	if !(timeout > 0) || timeout >= maxTimeoutSeconds {
		return 0
	}

	return time.Duration(timeout * float64(time.Second))
}

func (o object) CurrentState() (string, *dbus.Error) {
	client := o.s.Client()
	if client == nil {
		return "", toDBusError(ErrNotStarted)
	}

	return client.State().String(), nil
}

func (o object) ConfigFile() (string, *dbus.Error) {
	return o.s.ConfigFile(), nil
}

func (o object) Reload() *dbus.Error {
	ctx, cancel := context.WithTimeout(context.Background(), reloadTimeout)
	defer cancel()

	return toDBusError(o.s.Reload(ctx))
}

func (o object) command(fn func(*deck.Client) error) *dbus.Error {
	return toDBusError(o.s.Do(fn))
}

func toDBusError(err error) *dbus.Error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, deck.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return dbus.NewError(ErrorNameTimeout, []any{err.Error()})
	case errors.Is(err, deck.ErrSubscription):
		return dbus.NewError(ErrorNameSubscription, []any{err.Error()})
	case errors.Is(err, deck.ErrConnection), errors.Is(err, ErrNotStarted):
		return dbus.NewError(ErrorNameConnection, []any{err.Error()})
	default:
		return dbus.NewError(ErrorNameFailed, []any{err.Error()})
	}
}

// introspection describes the exported interface.
func introspection() *introspect.Node {
	methods := introspect.Methods(object{})

	return &introspect.Node{
		Name: string(ObjectPath),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{
				Name:    Interface,
				Methods: methods,
				Signals: []introspect.Signal{{
					Name: "State",
					Args: []introspect.Arg{{Name: "state", Type: "s"}},
				}},
			},
		},
	}
}

// Export exports s on conn and requests the well-known bus name.
func Export(conn *dbus.Conn, s *Service) error {
	if err := conn.Export(object{s: s}, ObjectPath, Interface); err != nil {
		return fmt.Errorf("service: export: %w", err)
	}

	node := introspection()
	if err := conn.Export(introspect.NewIntrospectable(node), ObjectPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		return fmt.Errorf("service: export introspection: %w", err)
	}

	reply, err := conn.RequestName(BusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("service: request name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("service: name %s already taken", BusName)
	}

	return nil
}
