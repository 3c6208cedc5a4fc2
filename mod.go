// Package appkit provides the global tools shared by the packages of the
// module, such as the logger and the list of metric collectors.
package appkit

import (
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// EnvLogLevel is the name of the environment variable that can be set to
// change the level of the global logger.
const EnvLogLevel = "LLVL"

const defaultLevel = zerolog.InfoLevel

var logout = zerolog.ConsoleWriter{
	Out:        os.Stdout,
	TimeFormat: time.RFC3339,
}

// Logger is a globally available logger instance. By default, it only prints
// info level logs and above, which can be changed with the LLVL environment
// variable.
var Logger = zerolog.New(logout).Level(levelFromEnv()).
	With().Timestamp().Logger().
	With().Caller().Logger()

// PromCollectors exposes the Prometheus collectors of the packages so that a
// handler can register them.
var PromCollectors []prometheus.Collector

func levelFromEnv() zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(os.Getenv(EnvLogLevel)))
	if err != nil || lvl == zerolog.NoLevel {
		return defaultLevel
	}

	return lvl
}
