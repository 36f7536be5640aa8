/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"tavle/board"
	"tavle/config"
	"tavle/db"
	"tavle/feed"
	"tavle/identity"
	"tavle/media"
	"tavle/server"
)

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the bulletin board",
		Description: `Starts the board HTTP server and the live feed hub.

Runs any pending database migrations, then serves the authoring and feed
API on the configured port. The feed is pushed to clients over SSE and
websocket as posts are created and deleted.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config/tavle.toml",
				Usage:   "Path to the configuration file",
				EnvVars: []string{"TAVLE_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "database",
				Usage:   "SQLite database path, overrides the config file",
				EnvVars: []string{"TAVLE_DATABASE"},
			},
			&cli.StringFlag{
				Name:    "hostname",
				Usage:   "Hostname the server is reachable on, overrides the config file",
				EnvVars: []string{"TAVLE_HOSTNAME"},
			},
			&cli.IntFlag{
				Name:    "port",
				Usage:   "Port to listen on, overrides the config file",
				EnvVars: []string{"TAVLE_PORT"},
			},
		},
		Action: func(ctx *cli.Context) error {
			fmt.Println("Starting tavle...")

			cfg, err := config.LoadConfig(ctx.String("config"))
			if err != nil {
				return err
			}
			if v := ctx.String("database"); v != "" {
				cfg.Database = v
			}
			if v := ctx.String("hostname"); v != "" {
				cfg.Server.Hostname = v
			}
			if v := ctx.Int("port"); v != 0 {
				cfg.Server.Port = v
			}

			if err := db.Migrate(cfg.Database); err != nil {
				return fmt.Errorf("failed to migrate database: %w", err)
			}

			store, err := db.NewStore(cfg.Database)
			if err != nil {
				return err
			}

			blobs, err := media.NewBlobStoreFromConfig(ctx.Context, cfg.Media)
			if err != nil {
				return err
			}

			uploader := media.NewUploader(blobs)
			registry := board.NewRegistry(uploader, store)
			hub := feed.NewHub(store)

			mediaRoot := ""
			if fsStore, ok := blobs.(*media.FileSystemStore); ok {
				mediaRoot = fsStore.Root()
			}

			app := server.Server(&server.ServerConfig{
				Hostname:     cfg.Server.Hostname,
				AllowOrigins: cfg.Server.AllowOrigins,
				Hub:          hub,
				Registry:     registry,
				Identity:     identity.NewStaticProvider(cfg.Users),
				Stats:        store,
				MediaRoot:    mediaRoot,
			})

			runCtx, cancel := context.WithCancel(ctx.Context)
			defer cancel()

			go hub.Run(runCtx)

			// Graceful shutdown
			c := make(chan os.Signal, 1)
			signal.Notify(c, os.Interrupt)

			go func() {
				<-c
				fmt.Println("Gracefully shutting down...")
				cancel()
				app.ShutdownWithTimeout(60 * time.Second)
			}()

			fmt.Println("Starting server...")
			if err := app.Listen(fmt.Sprintf(":%d", cfg.Server.Port)); err != nil {
				return err
			}

			if err := store.Close(); err != nil {
				log.Errorf("Error closing store: %v", err)
			}

			fmt.Println("Done!")
			return nil
		},
	}
}
