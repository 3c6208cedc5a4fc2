package node

import (
	"strconv"
	"time"
)

// FlagSet is the set of flags sent to the daemon with an action. Values are in
// their text form, as they would be typed, and a value that does not parse
// reads as zero.
//
// - implements cli.Flags
type FlagSet map[string]string

// String implements cli.Flags.
func (fset FlagSet) String(name string) string {
	return fset[name]
}

// Duration implements cli.Flags.
func (fset FlagSet) Duration(name string) time.Duration {
	d, err := time.ParseDuration(fset[name])
	if err != nil {
		return 0
	}

	return d
}

// Path implements cli.Flags.
func (fset FlagSet) Path(name string) string {
	return fset[name]
}

// Int implements cli.Flags.
func (fset FlagSet) Int(name string) int {
	v, err := strconv.Atoi(fset[name])
	if err != nil {
		return 0
	}

	return v
}
