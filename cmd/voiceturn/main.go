// Command voiceturn runs the voice conversation turn controller.
//
// Usage:
//
//	voiceturn serve -f config.yaml [--debug] [--listen :8080]
//	voiceturn turn  -f config.yaml --file utterance.wav
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"

	"github.com/teslashibe/go-voiceturn/internal/config"
	"github.com/teslashibe/go-voiceturn/internal/log"
)

// Options is the root command. The struct tags are interpreted by
// github.com/jessevdk/go-flags.
type Options struct {
	Config string `short:"f" long:"config" description:"config YAML path"`
	Debug  bool   `long:"debug" description:"enable debug logging"`

	Serve ServeCmd `command:"serve" description:"Serve the HTTP and WebSocket API"`
	Turn  TurnCmd  `command:"turn" description:"Run one turn against a local recording and exit"`
}

var opts Options

func main() {
	if err := run(os.Args[1:]); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			fmt.Println(err)
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	_, err := parser.ParseArgs(args)
	return err
}

// loadConfig reads the config named on the command line, applies the
// debug flag and initializes logging.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return cfg, err
	}
	if opts.Debug {
		cfg.Debug = true
	}
	log.InitDebug(cfg.Debug)
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
