package main

import (
	"os"

	"github.com/rs/zerolog/log"

	"live-quiz-client/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		log.Error().Err(err).Msg("quiz-client failed")
		os.Exit(1)
	}
}
