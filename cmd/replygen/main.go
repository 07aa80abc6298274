// Command replygen runs the reply-generation engine: an ops server with a
// generation endpoint, a one-shot generate mode for moderator tooling, and a
// config validator.
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/kavora-ai/replygen/pkg/config"
	"github.com/kavora-ai/replygen/pkg/logger"
)

var cli struct {
	Config   string `help:"Path to config file." short:"c" default:"replygen.yaml"`
	LogLevel string `help:"Log level (debug, info, warn, error)." default:""`

	Serve          ServeCmd          `cmd:"" help:"Start the ops server with the generation endpoint."`
	Generate       GenerateCmd       `cmd:"" help:"Generate one reply from a request JSON file."`
	ValidateConfig ValidateConfigCmd `cmd:"" name:"validate-config" help:"Validate the configuration file."`
}

func main() {
	ctx := kong.Parse(&cli,
		kong.Name("replygen"),
		kong.Description("Multi-agent reply-generation engine for chat moderation."),
		kong.UsageOnError(),
	)

	if err := config.LoadEnvFiles(); err != nil {
		fmt.Fprintln(os.Stderr, "warning:", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	level, _ := logger.ParseLevel(firstNonEmpty(cli.LogLevel, cfg.LogLevel))
	logger.Init(level, os.Stderr, cfg.LogFormat)

	ctx.FatalIfErrorf(ctx.Run(cfg))
}

func loadConfig() (*config.Config, error) {
	path := cli.Config
	if _, err := os.Stat(path); os.IsNotExist(err) && path == "replygen.yaml" {
		// default config file is optional; env-driven defaults apply
		path = ""
	}
	return config.Load(path)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
