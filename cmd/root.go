/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func RootApp() *cli.App {
	return &cli.App{
		Name:  "tavle",
		Usage: "An authenticated bulletin board with a live feed",
		Description: `A small bulletin board where signed-in users author rich-text
		posts with inline images to a shared feed, and the feed updates live
		as others post or delete.

		Posts are written to an SQLite database, media goes to a configurable
		blob store, and the feed is pushed to clients over SSE and websocket.

		Flags can generally be set via environment variables, e.g.:

		--database => TAVLE_DATABASE=tavle.db
		--port => TAVLE_PORT=3000
		`,
		Commands: []*cli.Command{
			serveCmd(),
			migrateCmd(),
			rollbackCmd(),
			tidyCmd(),
			publishCmd(),
			tailCmd(),
		},
		Action: func(ctx *cli.Context) error {
			// Show help if no command is specified
			return ctx.App.Run([]string{"", "help"})
		},
	}
}

func Execute() {
	if err := RootApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
