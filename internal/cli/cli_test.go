package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-plusdeck/config"
	"github.com/arloliu/go-plusdeck/deck"
)

func TestPrinter_Text(t *testing.T) {
	require := require.New(t)

	var buf bytes.Buffer
	p, err := NewPrinter(&buf, OutputText)
	require.NoError(err)
	require.False(p.JSON())

	require.NoError(p.Print(deck.PlayingA))
	require.NoError(p.Print("/dev/ttyUSB0"))
	require.NoError(p.Print(&config.Config{Port: "/dev/ttyUSB0", Timeout: 2 * time.Second}))
	require.NoError(p.Print(config.Default()))
	require.Equal("PlayingA\n/dev/ttyUSB0\nport: /dev/ttyUSB0\ntimeout: 2s\n", buf.String())
}

func TestPrinter_JSON(t *testing.T) {
	require := require.New(t)

	var buf bytes.Buffer
	p, err := NewPrinter(&buf, OutputJSON)
	require.NoError(err)

	require.NoError(p.Print(deck.Subscribed))
	require.NoError(p.Print("x"))
	require.Equal("\"Subscribed\"\n\"x\"\n", buf.String())
}

func TestPrinter_Format(t *testing.T) {
	require := require.New(t)

	// a buffer is never a terminal
	p, err := NewPrinter(&bytes.Buffer{}, "")
	require.NoError(err)
	require.True(p.JSON())

	_, err = NewPrinter(&bytes.Buffer{}, "yaml")
	require.ErrorIs(err, ErrUsage)
}

func TestCommand_Dispatch(t *testing.T) {
	require := require.New(t)

	var (
		got     []string
		verbose bool
	)
	root := &Command{
		Name:        "tool",
		Subcommands: []*Command{
			{
				Name:        "group",
				Subcommands: []*Command{
					{
						Name:  "leaf",
						Flags: func(fs *pflag.FlagSet) { fs.BoolVar(&verbose, "verbose", false, "") },
						Run: func(_ context.Context, args []string) error {
							got = args
							return nil
						},
					},
				},
			},
		},
	}

	var out bytes.Buffer
	require.NoError(root.Execute(context.Background(), &out, []string{"group", "leaf", "--verbose", "x", "y"}))
	require.Equal([]string{"x", "y"}, got)
	require.True(verbose)

	err := root.Execute(context.Background(), &out, []string{"group", "nope"})
	require.ErrorIs(err, ErrUsage)
	require.Contains(err.Error(), `"group nope"`)
	require.Contains(out.String(), "leaf")

	err = root.Execute(context.Background(), &out, []string{"group", "leaf", "--bogus"})
	require.ErrorIs(err, ErrUsage)

	out.Reset()
	err = root.Execute(context.Background(), &out, nil)
	var exitErr *ExitError
	require.ErrorAs(err, &exitErr)
	require.Equal(2, exitErr.Code)
	require.Contains(out.String(), "group")

	require.NoError(root.Execute(context.Background(), &out, []string{"help"}))
}

func TestReport(t *testing.T) {
	require := require.New(t)

	var buf bytes.Buffer
	require.Equal(2, Report(&buf, &ExitError{Code: 2}))
	require.Empty(buf.String())

	require.Equal(2, Report(&buf, Usage(errors.New("bad flag"))))
	require.Equal("error: usage: bad flag\n", buf.String())

	buf.Reset()
	require.Equal(1, Report(&buf, errors.New("boom")))
	require.Equal("error: boom\n", buf.String())
}

type fakeController struct {
	calls []string
	ctxs  []context.Context
}

func (f *fakeController) record(ctx context.Context, name string) error {
	f.calls = append(f.calls, name)
	f.ctxs = append(f.ctxs, ctx)
	return nil
}

func (f *fakeController) PlayA(ctx context.Context) error        { return f.record(ctx, "PlayA") }
func (f *fakeController) PlayB(ctx context.Context) error        { return f.record(ctx, "PlayB") }
func (f *fakeController) FastForwardA(ctx context.Context) error { return f.record(ctx, "FastForwardA") }
func (f *fakeController) FastForwardB(ctx context.Context) error { return f.record(ctx, "FastForwardB") }
func (f *fakeController) RewindA(ctx context.Context) error      { return f.record(ctx, "RewindA") }
func (f *fakeController) RewindB(ctx context.Context) error      { return f.record(ctx, "RewindB") }
func (f *fakeController) Pause(ctx context.Context) error        { return f.record(ctx, "Pause") }
func (f *fakeController) Stop(ctx context.Context) error         { return f.record(ctx, "Stop") }
func (f *fakeController) Eject(ctx context.Context) error        { return f.record(ctx, "Eject") }

func TestControlCommands(t *testing.T) {
	require := require.New(t)

	fake := &fakeController{}
	opened := 0
	root := &Command{
		Name:        "plusdeck",
		Subcommands: ControlCommands(func(_ context.Context, fn func(Controller) error) error {
			opened++
			return fn(fake)
		}),
	}

	var out bytes.Buffer
	for _, args := range [][]string{
		{"play", "a"}, {"play", "b"},
		{"fast-forward", "a"}, {"fast-forward", "b"},
		{"rewind", "a"}, {"rewind", "b"},
		{"pause"}, {"stop"}, {"eject"},
	} {
		require.NoError(root.Execute(context.Background(), &out, args), args)
	}

	require.Equal([]string{
		"PlayA", "PlayB", "FastForwardA", "FastForwardB", "RewindA", "RewindB", "Pause", "Stop", "Eject",
	}, fake.calls)
	require.Equal(9, opened)

	require.ErrorIs(root.Execute(context.Background(), &out, []string{"play", "c"}), ErrUsage)
	require.ErrorIs(root.Execute(context.Background(), &out, []string{"stop", "now"}), ErrUsage)
	require.Equal(9, opened)
}

type ctxKey struct{}

func TestControlCommands_PassContext(t *testing.T) {
	require := require.New(t)

	fake := &fakeController{}
	root := &Command{
		Name:        "plusdeck",
		Subcommands: ControlCommands(func(_ context.Context, fn func(Controller) error) error {
			return fn(fake)
		}),
	}

	ctx := context.WithValue(context.Background(), ctxKey{}, "session")
	var out bytes.Buffer
	require.NoError(root.Execute(ctx, &out, []string{"rewind", "b"}))
	require.NoError(root.Execute(ctx, &out, []string{"eject"}))

	require.Equal([]string{"RewindB", "Eject"}, fake.calls)
	for _, got := range fake.ctxs {
		require.Equal("session", got.Value(ctxKey{}))
	}
}

func TestConfigCommand(t *testing.T) {
	require := require.New(t)

	path := filepath.Join(t.TempDir(), "conf", "plusdeck.yaml")
	g := &Globals{ConfigFile: path}

	var stdout, stderr bytes.Buffer
	p, err := NewPrinter(&stdout, OutputText)
	require.NoError(err)
	cmd := &Command{Name: "plusdeck", Subcommands: []*Command{ConfigCommand(g, p)}}
	exec := func(args ...string) error {
		return cmd.Execute(context.Background(), &stderr, append([]string{"config"}, args...))
	}

	require.NoError(exec("set", "port", "/dev/ttyUSB3"))
	require.NoError(exec("set", "timeout", "1.5"))
	require.FileExists(path)

	require.NoError(exec("get", "port"))
	require.NoError(exec("show"))
	require.Equal("/dev/ttyUSB3\nport: /dev/ttyUSB3\ntimeout: 1.5s\n", stdout.String())

	require.NoError(exec("unset", "timeout"))
	cfg, err := config.LoadFile(path)
	require.NoError(err)
	require.Zero(cfg.Timeout)
	require.Equal("/dev/ttyUSB3", cfg.Port)

	var exitErr *ExitError
	err = exec("get", "speed")
	require.ErrorAs(err, &exitErr)
	require.Equal(1, exitErr.Code)
	require.ErrorIs(err, config.ErrUnknownField)

	err = exec("set", "timeout", "soon")
	require.ErrorAs(err, &exitErr)
	require.Equal(1, exitErr.Code)
}

func TestGlobals_EffectiveConfig(t *testing.T) {
	require := require.New(t)

	path := filepath.Join(t.TempDir(), "plusdeck.yaml")
	require.NoError(os.WriteFile(path, []byte("port: /dev/ttyFILE\ntimeout: 1s\n"), 0o644))

	var g Globals
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	g.RegisterConfig(fs)
	g.RegisterDevice(fs)
	require.NoError(fs.Parse([]string{"-C", path}))

	cfg, err := g.EffectiveConfig()
	require.NoError(err)
	require.Equal("/dev/ttyFILE", cfg.Port)
	require.Equal(time.Second, cfg.Timeout)

	t.Setenv(config.EnvPort, "/dev/ttyENV")
	t.Setenv(config.EnvTimeout, "2s")
	cfg, err = g.EffectiveConfig()
	require.NoError(err)
	require.Equal("/dev/ttyENV", cfg.Port)
	require.Equal(2*time.Second, cfg.Timeout)

	require.NoError(fs.Parse([]string{"--port", "/dev/ttyFLAG", "--timeout", "3s"}))
	cfg, err = g.EffectiveConfig()
	require.NoError(err)
	require.Equal("/dev/ttyFLAG", cfg.Port)
	require.Equal(3*time.Second, cfg.Timeout)

	// the stored file is untouched by overrides
	stored, err := g.LoadConfig()
	require.NoError(err)
	require.Equal("/dev/ttyFILE", stored.Port)
}
