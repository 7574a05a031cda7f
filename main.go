package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"git.lost.host/meutraa/bmspreview/internal/config"
	"git.lost.host/meutraa/bmspreview/internal/input"
	"git.lost.host/meutraa/bmspreview/internal/theme"
	"golang.org/x/term"
)

var errFailures = errors.New("some charts failed")

func main() {
	if err := run(os.Args[1:]); nil != err {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	c, err := config.Parse(args)
	if nil != err {
		return err
	}

	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	interactive := term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stderr.Fd()))
	if interactive && !c.NoInput {
		stop, err := input.Watch(ctx, cancel)
		if nil != err {
			logger.Warn("unable to watch keyboard, abort with a signal instead", "error", err)
		} else {
			defer stop()
		}
	}

	p := &Program{
		Logger:   logger,
		Theme:    &theme.DefaultTheme{Color: term.IsTerminal(int(os.Stdout.Fd()))},
		Progress: interactive,
	}
	if err := p.Init(c); nil != err {
		return err
	}
	defer p.Deinit()

	summary, err := p.Run(ctx, os.Stdout)
	if nil != err {
		return err
	}
	if summary.Failure > 0 {
		return fmt.Errorf("%w: %d of %d", errFailures, summary.Failure, summary.Total())
	}
	return nil
}
