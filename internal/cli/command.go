package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"
)

// ErrUsage indicates a command line that could not be parsed.
var ErrUsage = errors.New("usage")

// ExitError carries the exit code of a failed command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}

	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// ExitCode implements the exit code contract of the main functions.
func (e *ExitError) ExitCode() int { return e.Code }

// Usage wraps err as a usage error exiting with status 2.
func Usage(err error) error {
	return &ExitError{Code: 2, Err: fmt.Errorf("%w: %w", ErrUsage, err)}
}

// Command is a node of the command tree. A command either has sub commands or runs.
type Command struct {
	Name    string
	Args    string
	Summary string

	// Flags registers the flags of the command. It is called with a fresh flag set on
	// each execution.
	Flags func(fs *pflag.FlagSet)

	// Run executes the command with the positional arguments left after flag parsing.
	Run func(ctx context.Context, args []string) error

	Subcommands []*Command
}

// Execute runs the command selected by args.
func (c *Command) Execute(ctx context.Context, w io.Writer, args []string) error {
	return c.execute(ctx, w, nil, args)
}

func (c *Command) execute(ctx context.Context, w io.Writer, path []string, args []string) error {
	path = append(path, c.Name)

	if len(c.Subcommands) > 0 {
		if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
			c.usage(w, path)
			if len(args) == 0 {
				return &ExitError{Code: 2}
			}

			return nil
		}

		for _, sub := range c.Subcommands {
			if sub.Name == args[0] {
				return sub.execute(ctx, w, path, args[1:])
			}
		}

		c.usage(w, path)

		return Usage(fmt.Errorf("unknown command %q", strings.Join(append(path[1:], args[0]), " ")))
	}

	fs := pflag.NewFlagSet(strings.Join(path, " "), pflag.ContinueOnError)
	fs.SetOutput(w)
	fs.Usage = func() {
		fmt.Fprintf(w, "Usage: %s %s\n\n%s\n", strings.Join(path, " "), c.Args, c.Summary)
		if fs.HasFlags() {
			fmt.Fprintf(w, "\nFlags:\n%s", fs.FlagUsages())
		}
	}
	if c.Flags != nil {
		c.Flags(fs)
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}

		return Usage(err)
	}

	return c.Run(ctx, fs.Args())
}

func (c *Command) usage(w io.Writer, path []string) {
	fmt.Fprintf(w, "Usage: %s <command>\n", strings.Join(path, " "))
	if c.Summary != "" {
		fmt.Fprintf(w, "\n%s\n", c.Summary)
	}
	fmt.Fprintln(w, "\nCommands:")

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, sub := range c.Subcommands {
		fmt.Fprintf(tw, "  %s\t%s\n", strings.TrimSpace(sub.Name+" "+sub.Args), sub.Summary)
	}
	tw.Flush()
}

// ExactArgs returns a usage error unless args has n elements.
func ExactArgs(args []string, n int) error {
	if len(args) != n {
		return Usage(fmt.Errorf("expected %d argument(s), got %d", n, len(args)))
	}

	return nil
}

// Report writes err to w and returns the exit code of the process. Errors implementing
// ExitCode choose their own code; an ExitError without a cause prints nothing.
func Report(w io.Writer, err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Err == nil {
		return exitErr.Code
	}

	fmt.Fprintf(w, "error: %v\n", err)

	var coder interface{ ExitCode() int }
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}

	return 1
}
