/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"tavle/feedclient"
	"tavle/models"
)

func tailCmd() *cli.Command {
	return &cli.Command{
		Name:  "tail",
		Usage: "Follow a board's live feed on the command line",
		Description: `Connects to a running board's websocket feed channel and prints
each feed snapshot as a JSON object on a single line. Use a tool like jq to
process the output.

Multiple hosts can be given; the client fails over between them with
exponential backoff.

Prints all other log messages to stderr.`,
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "host",
				Usage:   "Board endpoint, e.g. ws://localhost:3000 (repeatable)",
				EnvVars: []string{"TAVLE_HOSTS"},
				Value:   cli.NewStringSlice("ws://localhost:3000"),
			},
		},
		Action: func(ctx *cli.Context) error {
			// Keep stdout clean for the snapshot stream
			log.SetOutput(os.Stderr)

			snapshots := make(chan models.FeedSnapshot)

			err := feedclient.SubscribeWithSnapshots(ctx.Context, feedclient.Config{
				Hosts:     ctx.StringSlice("host"),
				UserAgent: "tavle-tail",
			}, snapshots)
			if err != nil {
				return err
			}

			for {
				select {
				case <-ctx.Context.Done():
					fmt.Fprintln(os.Stderr, "Stopping tail")
					return nil
				case snapshot := <-snapshots:
					line, err := json.Marshal(snapshot)
					if err != nil {
						log.Errorf("Failed to marshal snapshot: %v", err)
						continue
					}
					fmt.Println(string(line))
				}
			}
		},
	}
}
