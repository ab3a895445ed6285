package main

import (
	"context"

	"github.com/vaibhav210603/QRcade/pkg/config"
	"github.com/vaibhav210603/QRcade/pkg/logger"
	"github.com/vaibhav210603/QRcade/pkg/os"
	"github.com/vaibhav210603/QRcade/pkg/relay"
)

var Version = "?"

func main() {
	conf := config.NewRelayConfig()
	conf.ParseFlags()

	log := logger.NewConsole(conf.Relay.Debug, conf.Relay.Tag, false)

	log.Info().Msgf("version %s", Version)
	if log.GetLevel() < logger.InfoLevel {
		log.Debug().Msgf("config: %+v", conf)
	}

	r, err := relay.New(conf, log)
	if err != nil {
		log.Fatal().Err(err).Msg("couldn't init the relay")
	}
	r.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		if err := r.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("service shutdown errors")
		}
	}()
	<-os.ExpectTermination()
	cancel()
}
