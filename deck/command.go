package deck

import (
	"fmt"
	"strings"
)

// Command is a command byte sent to the deck.
type Command byte

// Commands understood by the deck.
const (
	PlayA       Command = 0x01
	PlayB       Command = 0x02
	FastForward Command = 0x03
	Rewind      Command = 0x04
	Pause       Command = 0x05
	Stop        Command = 0x06
	Eject       Command = 0x08
	Subscribe   Command = 0x0B
	Unsubscribe Command = 0x0C
)

var commandNames = map[Command]string{
	PlayA:       "PlayA",
	PlayB:       "PlayB",
	FastForward: "FastForward",
	Rewind:      "Rewind",
	Pause:       "Pause",
	Stop:        "Stop",
	Eject:       "Eject",
	Subscribe:   "Subscribe",
	Unsubscribe: "Unsubscribe",
}

// Commands returns every command in wire order.
func Commands() []Command {
	return []Command{PlayA, PlayB, FastForward, Rewind, Pause, Stop, Eject, Subscribe, Unsubscribe}
}

// Byte returns the wire byte of the command.
func (c Command) Byte() byte { return byte(c) }

// IsValid reports whether c is one of the defined commands.
func (c Command) IsValid() bool {
	_, ok := commandNames[c]
	return ok
}

// String returns the name of the command.
func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}

	return fmt.Sprintf("Command(0x%02X)", byte(c))
}

// ParseCommand returns the command with the given name. Matching ignores case,
// '-' and '_', so "fast-forward" and "FAST_FORWARD" both name FastForward.
func ParseCommand(name string) (Command, error) {
	key := normalizeName(name)
	for cmd, n := range commandNames {
		if strings.ToLower(n) == key {
			return cmd, nil
		}
	}

	return 0, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
}

func normalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, "-", "")

	return strings.ReplaceAll(name, "_", "")
}
