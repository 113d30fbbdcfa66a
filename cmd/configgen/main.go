// configgen writes or validates the config files of a lab root.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/danmuck/labctl/internal/config"
	"github.com/danmuck/labctl/internal/lab"
	"github.com/danmuck/labctl/internal/logging"
	"github.com/danmuck/labctl/internal/tools"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

func main() {
	log := logging.New(os.Stderr, logging.FromEnv(logging.ProfileTest))
	if err := run(os.Args[1:], log); err != nil {
		log.Error().Err(err).Msg("configgen failed")
		os.Exit(1)
	}
}

func run(args []string, log zerolog.Logger) error {
	flags := pflag.NewFlagSet("configgen", pflag.ContinueOnError)
	flags.SetOutput(io.Discard)
	kind := flags.String("kind", config.KindEnviron, "config kind: environ|lab")
	output := flags.String("output", "", "output path for config template (default: the kind's file in the lab root)")
	validate := flags.Bool("validate", false, "validate an existing config file")
	input := flags.String("input", "", "config path for validation (default: the kind's file in the lab root)")
	force := flags.Bool("force", false, "overwrite existing config file")
	labDir := flags.String("lab", os.Getenv(lab.EnvLabDir), "lab root")
	if err := flags.Parse(args); err != nil {
		return err
	}

	name, err := config.DefaultFile(*kind)
	if err != nil {
		return err
	}
	defaultPath := filepath.Join(*labDir, name)

	if *validate {
		path := *input
		if path == "" {
			path = defaultPath
		}
		if err := validateFile(*kind, path); err != nil {
			return err
		}
		log.Info().Str("kind", *kind).Str("path", path).Msg("validated config")
		return nil
	}

	target := *output
	if target == "" {
		target = defaultPath
	}
	target, err = tools.EnsureOutFile(target)
	if err != nil {
		return err
	}
	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		return err
	}
	log.Info().Str("kind", *kind).Str("path", target).Msg("wrote config template")
	return nil
}

func validateFile(kind, path string) error {
	if _, err := tools.EnsureInFile(path); err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	switch kind {
	case config.KindEnviron:
		_, err := config.LoadEnviron(path)
		return err
	default:
		return errors.New("only environ files can be validated here; labctl checks lab.toml on startup")
	}
}
