// Command logiqd runs the Logiq permission and suspension service.
package main

import (
	"github.com/urfave/cli/v2"

	"github.com/bredsky212/Logiq212/internal/config"
)

var (
	version = "0.1.0"
	commit  = ""
)

func main() {
	app := cli.App{
		Name:    "logiqd",
		Usage:   "feature permission gate, protected targets and suspensions for the Logiq bot",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "env-file",
				Usage:   "dotenv files to load before reading the environment",
				Value:   cli.NewStringSlice(".env"),
				EnvVars: []string{"LOGIQ_ENV_FILE"},
			},
		},
		Commands: []*cli.Command{
			serveCommand,
			migrateCommand,
			tokenCommand,
		},
	}
	app.RunAndExitOnError()
}

func loadConfig(cctx *cli.Context) (*config.Config, error) {
	return config.Load(cctx.StringSlice("env-file")...)
}
