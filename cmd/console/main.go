// main is the entry point for the Checkpoint terminal console.
//
// It logs in against the API with the session token kept on disk, and
// offers a line-oriented shell for browsing events and participants and
// for editing an event's check-in rules. See internal/console for the
// commands.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/eventdesk/checkpoint/internal/client"
	"github.com/eventdesk/checkpoint/internal/config"
	"github.com/eventdesk/checkpoint/internal/console"
	"github.com/eventdesk/checkpoint/internal/logging"
	"github.com/mattn/go-isatty"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "checkpoint:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConsole()
	if err != nil {
		return err
	}
	logger := logging.New(os.Stderr, cfg.LogLevel, !isatty.IsTerminal(os.Stderr.Fd()))

	tokenPath := cfg.TokenFile
	if tokenPath == "" {
		if tokenPath, err = client.DefaultTokenPath(); err != nil {
			return err
		}
	}

	api := client.New(cfg.APIURL, client.FileTokenStore{Path: tokenPath},
		client.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
		client.WithLogger(logger),
	)

	logger.Debug("console starting", "api", cfg.APIURL, "token_file", tokenPath, "logged_in", api.LoggedIn())
	return console.NewShell(api, os.Stdin, os.Stdout, logger).Run(context.Background())
}
