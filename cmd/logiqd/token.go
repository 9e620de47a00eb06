package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/bredsky212/Logiq212/internal/servicetoken"
)

var tokenCommand = &cli.Command{
	Name:  "token",
	Usage: "issue a service token for the bot adapter",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "subject",
			Usage: "token subject, usually the bot instance name",
			Value: "logiq-bot",
		},
		&cli.StringSliceFlag{
			Name:  "scope",
			Usage: "granted scopes (read, write)",
			Value: cli.NewStringSlice(servicetoken.ScopeRead, servicetoken.ScopeWrite),
		},
		&cli.DurationFlag{
			Name:  "ttl",
			Usage: "token lifetime",
			Value: 30 * 24 * time.Hour,
		},
	},
	Action: runToken,
}

func runToken(cctx *cli.Context) error {
	cfg, err := loadConfig(cctx)
	if err != nil {
		return err
	}
	if cfg.APISecret == "" {
		return errors.New("LOGIQ_API_SECRET is required to issue tokens")
	}
	signer, err := servicetoken.NewSigner(cfg.APISecret)
	if err != nil {
		return err
	}
	tok, err := signer.Issue(cctx.String("subject"), cctx.StringSlice("scope"), cctx.Duration("ttl"))
	if err != nil {
		return err
	}
	fmt.Println(tok)
	return nil
}
