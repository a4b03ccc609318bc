package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/rickgao/storetwin/internal/auth"
)

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "issue a signed client token",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "subject", Usage: "token subject", Required: true},
			&cli.StringFlag{Name: "role", Usage: "informational role claim", Value: "viewer"},
			&cli.DurationFlag{Name: "ttl", Usage: "token lifetime, 0 = auth.token_ttl"},
		},
		Action: runToken,
	}
}

func runToken(_ context.Context, cmd *cli.Command) error {
	cfg, _, err := setup(cmd)
	if err != nil {
		return err
	}
	if cfg.Auth.Secret == "" {
		return errors.New("auth.secret is not configured")
	}

	creds, err := auth.NewCredentials(cfg.Auth.Secret)
	if err != nil {
		return err
	}

	ttl := cmd.Duration("ttl")
	if ttl <= 0 {
		ttl = cfg.Auth.TokenTTL
	}

	token, err := creds.Issue(cmd.String("subject"), cmd.String("role"), ttl)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}
	fmt.Println(token)
	return nil
}
