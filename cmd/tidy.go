/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"github.com/urfave/cli/v2"

	"tavle/db"
)

func tidyCmd() *cli.Command {
	return &cli.Command{
		Name:  "tidy",
		Usage: "Tidy up the database",
		Description: `Tidy up the database by pruning orphaned media asset records.

Uploads that were never woven into a published post pile up when authors
discard drafts. This removes asset records older than 30 days that no post
references, then compacts the database. Can be run as a cron job to keep
the database size down.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database",
				Aliases: []string{"d"},
				Value:   "tavle.db",
				Usage:   "SQLite database file location",
				EnvVars: []string{"TAVLE_DATABASE"},
			},
		},
		Action: func(ctx *cli.Context) error {
			return db.Tidy(ctx.String("database"))
		},
	}
}
