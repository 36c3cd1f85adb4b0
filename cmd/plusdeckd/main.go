// Command plusdeckd owns the serial port of a Plus Deck 2C and exposes it on D-Bus as
// org.jfhbrook.plusdeck.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/spf13/pflag"

	"github.com/arloliu/go-plusdeck/internal/cli"
	"github.com/arloliu/go-plusdeck/service"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := run(); err != nil {
		os.Exit(cli.Report(os.Stderr, err))
	}
}

func run() error {
	cli.LoadEnv()

	var (
		globals cli.Globals
		user    bool
	)

	fs := pflag.NewFlagSet("plusdeckd", pflag.ContinueOnError)
	globals.RegisterConfig(fs)
	globals.RegisterLogging(fs)
	fs.BoolVar(&user, "user", false, "connect to the user session bus instead of the system bus")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: plusdeckd [flags]\n\nFlags:\n%s", fs.FlagUsages())
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}

		return cli.Usage(err)
	}
	if fs.NArg() > 0 {
		return cli.Usage(fmt.Errorf("unexpected arguments %v", fs.Args()))
	}

	l, err := globals.SetupLogger()
	if err != nil {
		return err
	}

	file, err := globals.ConfigPath()
	if err != nil {
		return err
	}

	var conn *dbus.Conn
	if user {
		conn, err = dbus.ConnectSessionBus()
	} else {
		conn, err = dbus.ConnectSystemBus()
	}
	if err != nil {
		return fmt.Errorf("connect to bus: %w", err)
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc := service.New(file, conn, service.WithLogger(l))
	if err := svc.Start(ctx); err != nil {
		return errors.Join(err, svc.Close(context.Background()))
	}

	if err := service.Export(conn, svc); err != nil {
		return errors.Join(err, svc.Close(context.Background()))
	}

	l.Info("listening on bus", "name", service.BusName, "configFile", file, "userBus", user)

	select {
	case <-ctx.Done():
		l.Info("shutting down")
	case <-svc.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// a lost deck exits non-zero so that the supervisor restarts the daemon
	return errors.Join(svc.Err(), svc.Close(shutdownCtx))
}
