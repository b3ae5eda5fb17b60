package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/comigor/wanderchat/internal/client"
	"github.com/comigor/wanderchat/internal/config"
	"github.com/comigor/wanderchat/internal/logger"
	"github.com/comigor/wanderchat/internal/tui"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// the terminal belongs to the UI; logs go to a file
	f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open log file: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()
	logger.SetOutput(f)
	logger.SetLevel(cfg.Log.Level)

	var p *tea.Program
	c := client.New(cfg.Client.ServerURL,
		client.WithReadBuffer(cfg.Client.ReadBuffer),
		client.WithObserver(func(s client.Snapshot) {
			if p != nil {
				go p.Send(tui.SnapshotMsg(s))
			}
		}),
	)

	p = tea.NewProgram(tui.NewModel(c), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		logger.L.Error("ui exited", "error", err)
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
