// Command plusdeck controls a Plus Deck 2C cassette deck attached to a serial port.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/arloliu/go-plusdeck/deck"
	"github.com/arloliu/go-plusdeck/internal/cli"
	"github.com/arloliu/go-plusdeck/logger"
	"github.com/arloliu/go-plusdeck/serialport"
)

func main() {
	if err := run(); err != nil {
		os.Exit(cli.Report(os.Stderr, err))
	}
}

type app struct {
	globals cli.Globals
	out     *cli.Printer
	logger  logger.Logger
}

func run() error {
	cli.LoadEnv()

	a := &app{}

	fs := pflag.NewFlagSet("plusdeck", pflag.ContinueOnError)
	fs.SetInterspersed(false)
	a.globals.RegisterConfig(fs)
	a.globals.RegisterLogging(fs)
	a.globals.RegisterDevice(fs)
	a.globals.RegisterOutput(fs)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: plusdeck [flags] <command>\n\nFlags:\n%s\n", fs.FlagUsages())
		_ = a.commands().Execute(context.Background(), os.Stderr, []string{"help"})
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}

		return cli.Usage(err)
	}

	l, err := a.globals.SetupLogger()
	if err != nil {
		return err
	}
	a.logger = l

	if a.out, err = cli.NewPrinter(os.Stdout, a.globals.Output); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return a.commands().Execute(ctx, os.Stderr, fs.Args())
}

func (a *app) commands() *cli.Command {
	sub := []*cli.Command{cli.ConfigCommand(&a.globals, a.out)}
	sub = append(sub, cli.ControlCommands(a.withController)...)
	sub = append(sub, a.expectCommand(), a.subscribeCommand())

	return &cli.Command{Name: "plusdeck", Summary: "Control your Plus Deck 2C tape deck.", Subcommands: sub}
}

// connect opens the serial port of the effective configuration.
func (a *app) connect(ctx context.Context) (*serialport.Link, time.Duration, error) {
	cfg, err := a.globals.EffectiveConfig()
	if err != nil {
		return nil, 0, err
	}

	port := cfg.Port
	if port == "" {
		if port, err = serialport.DefaultPort(); err != nil {
			return nil, 0, err
		}
	}

	// The link outlives ctx so that a cancelled session can still unsubscribe.
	link, err := serialport.Open(context.WithoutCancel(ctx), port, serialport.WithLogger(a.logger))
	if err != nil {
		return nil, 0, err
	}

	return link, cfg.Timeout, nil
}

func (a *app) withClient(ctx context.Context, fn func(c *deck.Client, timeout time.Duration) error) (err error) {
	link, timeout, err := a.connect(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := link.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()

	return fn(link.Client(), timeout)
}

func (a *app) withController(ctx context.Context, fn func(cli.Controller) error) error {
	return a.withClient(ctx, func(c *deck.Client, _ time.Duration) error {
		return fn(controller{c})
	})
}

func (a *app) expectCommand() *cli.Command {
	var timeout time.Duration

	return &cli.Command{
		Name:    "expect",
		Args:    "STATE",
		Summary: "Wait for an expected state",
		Flags: func(fs *pflag.FlagSet) {
			fs.DurationVar(&timeout, "timeout", 0, "how long to wait for the state, 0 for the configured timeout")
		},
		Run: func(ctx context.Context, args []string) error {
			if err := cli.ExactArgs(args, 1); err != nil {
				return err
			}

			state, err := deck.ParseState(args[0])
			if err != nil {
				return cli.Usage(err)
			}
			if timeout < 0 {
				return cli.Usage(fmt.Errorf("negative timeout %s", timeout))
			}

			return a.withClient(ctx, func(c *deck.Client, defTimeout time.Duration) error {
				if timeout == 0 {
					timeout = defTimeout
				}

				return c.Session(ctx, func(rcv *deck.Receiver) error {
					err := rcv.Expect(ctx, state, timeout)
					if errors.Is(err, deck.ErrTimeout) {
						a.logger.Info("timed out waiting for state", "state", state, "timeout", timeout)
						return nil
					}

					return err
				})
			})
		},
	}
}

func (a *app) subscribeCommand() *cli.Command {
	var duration time.Duration

	return &cli.Command{
		Name:    "subscribe",
		Summary: "Subscribe to state changes",
		Flags: func(fs *pflag.FlagSet) {
			fs.DurationVar(&duration, "for", 0, "how long to listen for reports, 0 until interrupted")
		},
		Run: func(ctx context.Context, args []string) error {
			if err := cli.ExactArgs(args, 0); err != nil {
				return err
			}

			return a.withClient(ctx, func(c *deck.Client, _ time.Duration) error {
				listenCtx := ctx
				if duration > 0 {
					var cancel context.CancelFunc
					listenCtx, cancel = context.WithTimeout(ctx, duration)
					defer cancel()
				}

				return c.Session(listenCtx, func(rcv *deck.Receiver) error {
					for state := range rcv.States(listenCtx) {
						if err := a.out.Print(state); err != nil {
							return err
						}
					}

					if err := rcv.Err(); err != nil && listenCtx.Err() == nil {
						return err
					}

					return nil
				})
			})
		},
	}
}

// controller adapts a deck client to cli.Controller.
type controller struct{ c *deck.Client }

func (c controller) PlayA(context.Context) error        { return c.c.PlayA() }
func (c controller) PlayB(context.Context) error        { return c.c.PlayB() }
func (c controller) FastForwardA(context.Context) error { return c.c.FastForwardA() }
func (c controller) FastForwardB(context.Context) error { return c.c.FastForwardB() }
func (c controller) RewindA(context.Context) error      { return c.c.RewindA() }
func (c controller) RewindB(context.Context) error      { return c.c.RewindB() }
func (c controller) Pause(context.Context) error        { return c.c.Pause() }
func (c controller) Stop(context.Context) error         { return c.c.Stop() }
func (c controller) Eject(context.Context) error        { return c.c.Eject() }
