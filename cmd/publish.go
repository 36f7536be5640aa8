/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cqroot/prompt"
	"github.com/cqroot/prompt/input"
	"github.com/urfave/cli/v2"

	"tavle/models"
)

// publishCmd posts to a running board over its HTTP API, for quick
// announcements without opening a browser.
func publishCmd() *cli.Command {
	return &cli.Command{
		Name:  "publish",
		Usage: "Publish a post on the board",
		Description: `Publishes a plain-text post on a running board.

Opens an authoring session over the board's HTTP API, fills in the title
and text and submits. Prompts for anything not given as a flag.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "host",
				Aliases: []string{"H"},
				Value:   "http://localhost:3000",
				Usage:   "Base URL of the board",
				EnvVars: []string{"TAVLE_HOST"},
			},
			&cli.StringFlag{
				Name:    "token",
				Aliases: []string{"t"},
				Usage:   "Bearer token identifying the author",
				EnvVars: []string{"TAVLE_TOKEN"},
			},
			&cli.StringFlag{
				Name:  "title",
				Usage: "Post title",
			},
			&cli.StringFlag{
				Name:  "text",
				Usage: "Post body text",
			},
		},
		Action: func(ctx *cli.Context) error {
			token := ctx.String("token")
			if token == "" {
				var err error
				token, err = prompt.New().Ask("Token:").Input("", input.WithEchoMode(input.EchoNone))
				if err != nil {
					return err
				}
			}

			title := ctx.String("title")
			if title == "" {
				var err error
				title, err = prompt.New().Ask("Title:").Input("")
				if err != nil {
					return err
				}
			}

			text := ctx.String("text")
			if text == "" {
				var err error
				text, err = prompt.New().Ask("Text:").Input("")
				if err != nil {
					return err
				}
			}

			client := &boardClient{
				host:  strings.TrimSuffix(ctx.String("host"), "/"),
				token: token,
				http:  &http.Client{Timeout: 30 * time.Second},
			}

			sessionID, err := client.openSession()
			if err != nil {
				return err
			}

			if err := client.do(http.MethodPut, "/session/"+sessionID+"/title", map[string]string{"title": title}, nil); err != nil {
				return err
			}
			if err := client.do(http.MethodPost, "/session/"+sessionID+"/text", map[string]string{"text": text}, nil); err != nil {
				return err
			}

			var post models.Post
			if err := client.do(http.MethodPost, "/session/"+sessionID+"/submit", nil, &post); err != nil {
				return err
			}

			fmt.Printf("Published post %s: %s\n", post.ID, post.Title)
			return nil
		},
	}
}

type boardClient struct {
	host  string
	token string
	http  *http.Client
}

func (c *boardClient) openSession() (string, error) {
	var body struct {
		ID string `json:"id"`
	}
	if err := c.do(http.MethodPost, "/session", nil, &body); err != nil {
		return "", err
	}
	return body.ID, nil
}

func (c *boardClient) do(method string, path string, payload interface{}, out interface{}) error {
	var reader *bytes.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, c.host+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		return fmt.Errorf("board returned %s for %s %s", res.Status, method, path)
	}

	if out != nil {
		return json.NewDecoder(res.Body).Decode(out)
	}
	return nil
}
