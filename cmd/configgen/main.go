package main

import (
	"flag"
	"fmt"

	"github.com/danmuck/v4link/internal/bundle"
	"github.com/danmuck/v4link/internal/config"
	"github.com/danmuck/v4link/internal/logging"
	"github.com/rs/zerolog/log"
)

func main() {
	kind := flag.String("kind", "v4linkd", "config kind: v4linkd|bundle")
	output := flag.String("output", "", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", "", "config path for validation (defaults to per-kind path)")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()
	logging.ConfigureRuntime()

	if *validate {
		path := *input
		if path == "" {
			p, err := defaultPath(*kind)
			if err != nil {
				log.Fatal().Err(err).Msg("configgen")
			}
			path = p
		}
		if err := validateFile(*kind, path); err != nil {
			log.Fatal().Err(err).Msgf("configgen.validate kind=%s path=%s", *kind, path)
		}
		log.Info().Msgf("configgen.validate kind=%s path=%s ok", *kind, path)
		return
	}

	target := *output
	if target == "" {
		p, err := defaultPath(*kind)
		if err != nil {
			log.Fatal().Err(err).Msg("configgen")
		}
		target = p
	}
	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		log.Fatal().Err(err).Msg("configgen.write")
	}
	log.Info().Msgf("configgen.write kind=%s path=%s", *kind, target)
}

func defaultPath(kind string) (string, error) {
	switch kind {
	case "v4linkd", "daemon":
		return "cmd/v4linkd/config.toml", nil
	case "bundle":
		return "bundle.toml", nil
	default:
		return "", fmt.Errorf("unknown kind: %s", kind)
	}
}

func validateFile(kind, path string) error {
	switch kind {
	case "v4linkd", "daemon":
		_, err := config.LoadDaemonConfig(path)
		return err
	case "bundle":
		m, err := bundle.LoadManifest(path)
		if err != nil {
			return err
		}
		_, err = m.Container()
		return err
	default:
		return fmt.Errorf("unknown kind: %s", kind)
	}
}
