package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/fx"

	"dormchat/internal/bus"
	"dormchat/internal/config"
	"dormchat/internal/daemon"
	"dormchat/internal/profile"
	"dormchat/internal/session"
	"dormchat/internal/status"
	"dormchat/internal/tui"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	flag.Parse()

	profileName := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(profileName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// The session runs in-process: the fx module wires and starts it, the
	// TUI renders on top of it.
	var ui *tui.App
	app := fx.New(
		daemon.Module(daemon.Params{ProfileName: profileName, QuietLogging: true}),
		fx.Provide(func(s *session.Session, cfg *config.Config, b *bus.Bus, m *status.Machine) *tui.App {
			return tui.NewApp(s, cfg.UserID, b, m, profileName)
		}),
		fx.Populate(&ui),
		fx.NopLogger,
	)

	startCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	runErr := ui.Run()

	stopCtx, cancelStop := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelStop()
	_ = app.Stop(stopCtx)

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", runErr)
		os.Exit(1)
	}
}
