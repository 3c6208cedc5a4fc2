package cli

import "time"

// StringFlag is a flag with a text value, like an address or an amount.
//
// - implements cli.Flag
type StringFlag struct {
	Name     string
	Usage    string
	Required bool
	Value    string

	// EnvVars are the environment variables read when the flag is not set.
	EnvVars []string
}

// Flag implements cli.Flag.
func (StringFlag) Flag() {}

// DurationFlag is a flag with a duration value, like "500ms" or "1m".
//
// - implements cli.Flag
type DurationFlag struct {
	Name     string
	Usage    string
	Required bool
	Value    time.Duration
	EnvVars  []string
}

// Flag implements cli.Flag.
func (DurationFlag) Flag() {}

// IntFlag is a flag with an integer value.
//
// - implements cli.Flag
type IntFlag struct {
	Name     string
	Usage    string
	Required bool
	Value    int
	EnvVars  []string
}

// Flag implements cli.Flag.
func (IntFlag) Flag() {}
