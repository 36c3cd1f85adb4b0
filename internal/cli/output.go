package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/arloliu/go-plusdeck/config"
	"github.com/arloliu/go-plusdeck/deck"
)

const (
	OutputText = "text"
	OutputJSON = "json"
)

// Printer writes command results in the selected output format.
type Printer struct {
	w    io.Writer
	json bool
}

// NewPrinter returns a printer writing to w. An empty format selects text when w is a
// terminal and JSON otherwise.
func NewPrinter(w io.Writer, format string) (*Printer, error) {
	switch format {
	case OutputText:
		return &Printer{w: w}, nil
	case OutputJSON:
		return &Printer{w: w, json: true}, nil
	case "":
		return &Printer{w: w, json: !isTerminal(w)}, nil
	default:
		return nil, Usage(fmt.Errorf("unknown output format %q", format))
	}
}

// JSON reports whether the printer writes JSON.
func (p *Printer) JSON() bool { return p.json }

// Print writes v followed by a newline.
func (p *Printer) Print(v any) error {
	if p.json {
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")

		return enc.Encode(v)
	}

	switch v := v.(type) {
	case string:
		_, err := fmt.Fprintln(p.w, v)
		return err
	case *config.Config:
		data, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		if string(data) == "{}\n" {
			data = nil
		}
		_, err = p.w.Write(data)

		return err
	case deck.State:
		_, err := fmt.Fprintln(p.w, v.String())
		return err
	default:
		_, err := fmt.Fprintf(p.w, "%v\n", v)
		return err
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	return term.IsTerminal(int(f.Fd()))
}
