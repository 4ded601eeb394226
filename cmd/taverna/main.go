// Command taverna is a terminal initiative tracker for a Taverna session.
package main

import (
	"errors"
	"log"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/jessevdk/go-flags"
)

var opts struct {
	Local   bool   `long:"local" description:"Use local server instead of https://taverna.app"`
	Server  string `long:"server" default:"https://taverna.app" description:"Server URL"`
	Token   string `long:"token" env:"TAVERNA_TOKEN" required:"true" description:"API token from /auth/login"`
	Session int64  `short:"s" long:"session" required:"true" description:"Session ID to track"`
}

func main() {
	if _, err := flags.Parse(&opts); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	serverURL := opts.Server
	if opts.Local {
		serverURL = "http://localhost:8080"
	}

	p := tea.NewProgram(
		newModel(newAPIClient(serverURL, opts.Token), opts.Session),
		tea.WithAltScreen(),
	)

	if _, err := p.Run(); err != nil {
		log.Fatal(err)
	}
}
