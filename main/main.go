package main

import (
	"os"
	"runtime"
	"runtime/pprof"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/rawbytedev/msgstream/internal/config"
	"github.com/rawbytedev/msgstream/internal/logging"
)

var (
	configFlag = cli.StringFlag{
		Name:  "config",
		Usage: "TOML or YAML settings file",
	}
	memProfileFlag = cli.StringFlag{
		Name:  "memprofile",
		Usage: "Write a heap profile to this file on exit",
	}
)

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "msgstream"
	app.Usage = "Write and inspect framed message streams"
	app.Version = "0.1.0"
	app.Writer = os.Stdout
	app.Flags = []cli.Flag{configFlag, memProfileFlag}
	app.Commands = []cli.Command{demoCommand, dumpCommand}
	app.Before = setup
	app.After = writeMemProfile
	return app
}

// setup loads the settings file and installs the logger.
func setup(ctx *cli.Context) error {
	cfg, err := config.Load(ctx.GlobalString(configFlag.Name))
	if err != nil {
		return err
	}
	logging.Install(cfg.Logging(logging.ProfileRuntime), os.Stderr)
	if ctx.GlobalString(memProfileFlag.Name) != "" {
		runtime.MemProfileRate = 1
	}
	return nil
}

func loadConfig(ctx *cli.Context) (config.Config, error) {
	return config.Load(ctx.GlobalString(configFlag.Name))
}

func writeMemProfile(ctx *cli.Context) error {
	path := ctx.GlobalString(memProfileFlag.Name)
	if path == "" {
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "memprofile")
	}
	defer f.Close()
	runtime.GC()
	if err := pprof.WriteHeapProfile(f); err != nil {
		return errors.Wrap(err, "memprofile")
	}
	log.Debug().Str("path", path).Msg("heap profile written")
	return nil
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Error().Err(err).Msg("msgstream failed")
		os.Exit(1)
	}
}
