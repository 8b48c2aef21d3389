// Command plugintemplate runs the plugin template host: it loads config.toml,
// registers the built-in sub-commands and the demo plugin, and reads console
// commands from stdin until interrupted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/df-mc/plugintemplate/examples/plugins/demo"
	"github.com/df-mc/plugintemplate/server"
	"github.com/df-mc/plugintemplate/server/cmd/builtin"
	"github.com/df-mc/plugintemplate/server/console"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "config.toml", "path of the TOML configuration file")
	noConsole := flag.Bool("no-console", false, "do not read commands from stdin")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	uc, err := server.LoadUserConfig(*configPath)
	if err != nil {
		return err
	}
	log, level, logFile, err := uc.Logger(os.Stderr)
	if err != nil {
		return err
	}
	defer logFile.Close()

	conf, err := uc.Config(log)
	if err != nil {
		return err
	}
	conf.LogLevel = level
	srv := conf.New()
	defer srv.Close()

	if err := builtin.Register(srv); err != nil {
		return fmt.Errorf("register built-in sub-commands: %w", err)
	}
	if err := srv.ProvidePlugin("demo", demo.Init); err != nil {
		return err
	}
	srv.LoadPlugins()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.RunSweeper(ctx) })
	if !*noConsole {
		g.Go(func() error {
			defer stop()
			return console.New(srv, log).Run(ctx)
		})
	}
	log.Info("Server running.", "label", srv.Label(), "aliases", srv.Aliases())
	return g.Wait()
}
