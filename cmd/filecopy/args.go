package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"
)

// lateFlags holds the command flags written after a positional argument,
// keyed by the flag's primary name. Boolean flags map to "true" unless a
// value was given with "=".
type lateFlags map[string]string

// splitArgs separates the positional arguments of c from flags of its own
// command written after them, so `server 9000 --keep` and
// `client host 9000 -s` mean the same as their flag-first forms. A bare
// "--" ends flag recognition; everything after it is positional.
//
// Returns:
//   - The positional arguments
//   - The flags found among them
//   - An error for an unknown flag or a flag missing its value
func splitArgs(c *cli.Context) ([]string, lateFlags, error) {
	known := make(map[string]cli.Flag)
	for _, f := range c.Command.Flags {
		for _, name := range f.Names() {
			known[name] = f
		}
	}

	args := c.Args().Slice()
	var positional []string
	late := make(lateFlags)
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			positional = append(positional, args[i+1:]...)
			break
		}
		if len(arg) < 2 || arg[0] != '-' {
			positional = append(positional, arg)
			continue
		}

		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		f, ok := known[name]
		if !ok {
			return nil, nil, fmt.Errorf("unknown flag %s", arg)
		}

		if _, isBool := f.(*cli.BoolFlag); isBool {
			if !hasValue {
				value = "true"
			}
		} else if !hasValue {
			if i+1 >= len(args) {
				return nil, nil, fmt.Errorf("flag %s needs a value", arg)
			}
			i++
			value = args[i]
		}

		late[f.Names()[0]] = value
	}

	return positional, late, nil
}

// Bool returns the value of a boolean flag given before or after the
// positional arguments.
func (l lateFlags) Bool(c *cli.Context, name string) (bool, error) {
	v, ok := l[name]
	if !ok {
		return c.Bool(name), nil
	}

	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("--%s: %w", name, err)
	}
	return b, nil
}

// String returns the raw value of a flag given before or after the
// positional arguments, and whether it was given at all.
func (l lateFlags) String(c *cli.Context, name string) (string, bool) {
	if v, ok := l[name]; ok {
		return v, true
	}
	if c.IsSet(name) {
		return c.String(name), true
	}

	return "", false
}
