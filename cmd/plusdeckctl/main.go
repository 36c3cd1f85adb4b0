// Command plusdeckctl controls a Plus Deck 2C through the plusdeckd D-Bus service.
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
	"github.com/arloliu/go-plusdeck/service"
)

func main() {
	if err := run(); err != nil {
		os.Exit(cli.Report(os.Stderr, err))
	}
}

type app struct {
	globals cli.Globals
	user    bool
	out     *cli.Printer
	logger  logger.Logger
}

func run() error {
	cli.LoadEnv()

	a := &app{}

	fs := pflag.NewFlagSet("plusdeckctl", pflag.ContinueOnError)
	fs.SetInterspersed(false)
	a.globals.RegisterConfig(fs)
	a.globals.RegisterLogging(fs)
	a.globals.RegisterTimeout(fs)
	a.globals.RegisterOutput(fs)
	fs.BoolVar(&a.user, "user", false, "connect to the user session bus instead of the system bus")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: plusdeckctl [flags] <command>\n\nFlags:\n%s\n", fs.FlagUsages())
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
	sub = append(sub,
		a.expectCommand(),
		a.subscribeCommand(),
		a.queryCommand("state", "Show the current state of the deck", func(ctx context.Context, c *service.Client) (any, error) {
			return c.CurrentState(ctx)
		}),
		a.queryCommand("config-file", "Show the configuration file of the service", func(ctx context.Context, c *service.Client) (any, error) {
			return c.ConfigFile(ctx)
		}),
		&cli.Command{
			Name:    "reload",
			Summary: "Reconnect the service with its current configuration",
			Run: func(ctx context.Context, args []string) error {
				if err := cli.ExactArgs(args, 0); err != nil {
					return err
				}

				return a.withClient(func(c *service.Client) error { return c.Reload(ctx) })
			},
		},
	)

	return &cli.Command{Name: "plusdeckctl", Summary: "Control your Plus Deck 2C through plusdeckd.", Subcommands: sub}
}

func (a *app) withClient(fn func(c *service.Client) error) (err error) {
	c, err := service.Connect(a.user)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := c.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()

	return fn(c)
}

func (a *app) withController(_ context.Context, fn func(cli.Controller) error) error {
	return a.withClient(func(c *service.Client) error { return fn(c) })
}

func (a *app) queryCommand(name, summary string, query func(context.Context, *service.Client) (any, error)) *cli.Command {
	return &cli.Command{
		Name:    name,
		Summary: summary,
		Run: func(ctx context.Context, args []string) error {
			if err := cli.ExactArgs(args, 0); err != nil {
				return err
			}

			return a.withClient(func(c *service.Client) error {
				v, err := query(ctx, c)
				if err != nil {
					return err
				}

				return a.out.Print(v)
			})
		},
	}
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
			if timeout == 0 {
				cfg, err := a.globals.EffectiveConfig()
				if err != nil {
					return err
				}
				timeout = cfg.Timeout
			}

			return a.withClient(func(c *service.Client) error {
				err := c.WaitFor(ctx, state, timeout)
				if errors.Is(err, deck.ErrTimeout) {
					a.logger.Info("timed out waiting for state", "state", state, "timeout", timeout)
					return nil
				}

				return err
			})
		},
	}
}

func (a *app) subscribeCommand() *cli.Command {
	var duration time.Duration

	return &cli.Command{
		Name:    "subscribe",
		Summary: "Print the state changes emitted by the service",
		Flags: func(fs *pflag.FlagSet) {
			fs.DurationVar(&duration, "for", 0, "how long to listen for state changes, 0 until interrupted")
		},
		Run: func(ctx context.Context, args []string) error {
			if err := cli.ExactArgs(args, 0); err != nil {
				return err
			}

			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}

			return a.withClient(func(c *service.Client) error {
				states, err := c.Subscribe(ctx)
				if err != nil {
					return err
				}

				for state := range states {
					if err := a.out.Print(state); err != nil {
						return err
					}
				}

				return nil
			})
		},
	}
}
