// Package logging configures the process-wide zerolog logger.
package logging

import (
	"io"
	"os"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	zpkgerrors "github.com/rs/zerolog/pkgerrors"

	"github.com/ceotind/sharp-form-backend/internal/gelf"
)

const service = "sharpform"

type stackTracer interface{ StackTrace() pkgerrors.StackTrace }

// Options selects the level and optional GELF fan-out.
type Options struct {
	Level    string
	GelfAddr string
	Out      io.Writer
}

// Setup builds the logger, installs it as log.Logger and returns a closer
// for the GELF socket. A GELF dial failure is logged and not fatal.
func Setup(opts Options) (zerolog.Logger, func()) {
	level, err := zerolog.ParseLevel(opts.Level)
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.ErrorStackMarshaler = func(err error) interface{} {
		if _, ok := err.(stackTracer); !ok {
			err = pkgerrors.WithStack(err)
		}
		return zpkgerrors.MarshalStack(err)
	}

	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	writers := []io.Writer{out}
	closer := func() {}
	var gelfErr error
	if opts.GelfAddr != "" {
		g, err := gelf.New(opts.GelfAddr, service, level)
		if err != nil {
			gelfErr = err
		} else {
			writers = append(writers, g)
			closer = func() { _ = g.Close() }
		}
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().
		Str("service", service).
		Timestamp().
		Logger()
	log.Logger = logger
	zerolog.DefaultContextLogger = &log.Logger

	if gelfErr != nil {
		logger.Warn().Err(gelfErr).Msg("gelf logging disabled")
	} else if opts.GelfAddr != "" {
		logger.Info().Str("addr", opts.GelfAddr).Msg("gelf logging enabled")
	}
	return logger, closer
}
