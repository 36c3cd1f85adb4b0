package cli

import (
	"context"

	"github.com/arloliu/go-plusdeck/config"
)

// Controller sends transport commands to a deck, directly or through the service.
type Controller interface {
	PlayA(ctx context.Context) error
	PlayB(ctx context.Context) error
	FastForwardA(ctx context.Context) error
	FastForwardB(ctx context.Context) error
	RewindA(ctx context.Context) error
	RewindB(ctx context.Context) error
	Pause(ctx context.Context) error
	Stop(ctx context.Context) error
	Eject(ctx context.Context) error
}

// WithController runs fn with a connected controller and releases it afterwards.
type WithController func(ctx context.Context, fn func(Controller) error) error

// ControlCommands returns the play, fast-forward, rewind, pause, stop and eject commands.
func ControlCommands(with WithController) []*Command {
	run := func(method func(context.Context, Controller) error) func(context.Context, []string) error {
		return func(ctx context.Context, args []string) error {
			if err := ExactArgs(args, 0); err != nil {
				return err
			}

			return with(ctx, func(c Controller) error { return method(ctx, c) })
		}
	}

	sided := func(name, summary string, a, b func(context.Context, Controller) error) *Command {
		return &Command{
			Name:        name,
			Summary:     summary,
			Subcommands: []*Command{
				{Name: "a", Summary: summary + " on side A", Run: run(a)},
				{Name: "b", Summary: summary + " on side B", Run: run(b)},
			},
		}
	}

	return []*Command{
		sided("play", "Play the tape",
			func(ctx context.Context, c Controller) error { return c.PlayA(ctx) },
			func(ctx context.Context, c Controller) error { return c.PlayB(ctx) }),
		sided("fast-forward", "Fast-forward the tape",
			func(ctx context.Context, c Controller) error { return c.FastForwardA(ctx) },
			func(ctx context.Context, c Controller) error { return c.FastForwardB(ctx) }),
		sided("rewind", "Rewind the tape",
			func(ctx context.Context, c Controller) error { return c.RewindA(ctx) },
			func(ctx context.Context, c Controller) error { return c.RewindB(ctx) }),
		{Name: "pause", Summary: "Pause or resume the tape", Run: run(func(ctx context.Context, c Controller) error { return c.Pause(ctx) })},
		{Name: "stop", Summary: "Stop the tape", Run: run(func(ctx context.Context, c Controller) error { return c.Stop(ctx) })},
		{Name: "eject", Summary: "Eject the tape", Run: run(func(ctx context.Context, c Controller) error { return c.Eject(ctx) })},
	}
}

// ConfigCommand returns the config command group editing the file selected by g.
func ConfigCommand(g *Globals, out *Printer) *Command {
	return &Command{
		Name:        "config",
		Summary:     "Configure plusdeck",
		Subcommands: []*Command{
			{
				Name:    "get",
				Args:    "NAME",
				Summary: "Get a parameter from the configuration file",
				Run: func(_ context.Context, args []string) error {
					if err := ExactArgs(args, 1); err != nil {
						return err
					}

					cfg, err := g.LoadConfig()
					if err != nil {
						return err
					}

					v, err := cfg.Get(args[0])
					if err != nil {
						return &ExitError{Code: 1, Err: err}
					}

					return out.Print(v)
				},
			},
			{
				Name:    "show",
				Summary: "Show the current configuration",
				Run: func(_ context.Context, args []string) error {
					if err := ExactArgs(args, 0); err != nil {
						return err
					}

					cfg, err := g.LoadConfig()
					if err != nil {
						return err
					}

					return out.Print(cfg)
				},
			},
			{
				Name:    "set",
				Args:    "NAME VALUE",
				Summary: "Set a parameter in the configuration file",
				Run: func(_ context.Context, args []string) error {
					if err := ExactArgs(args, 2); err != nil {
						return err
					}

					return editConfig(g, func(cfg *config.Config) error { return cfg.Set(args[0], args[1]) })
				},
			},
			{
				Name:    "unset",
				Args:    "NAME",
				Summary: "Unset a parameter in the configuration file",
				Run: func(_ context.Context, args []string) error {
					if err := ExactArgs(args, 1); err != nil {
						return err
					}

					return editConfig(g, func(cfg *config.Config) error { return cfg.Unset(args[0]) })
				},
			},
		},
	}
}

func editConfig(g *Globals, edit func(*config.Config) error) error {
	cfg, err := g.LoadConfig()
	if err != nil {
		return err
	}

	if err := edit(cfg); err != nil {
		return &ExitError{Code: 1, Err: err}
	}

	return cfg.Save()
}
