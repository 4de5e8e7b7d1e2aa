//go:build wireinject

package main

import (
	"context"

	"github.com/google/wire"
	"github.com/rs/zerolog"

	"github.com/janhq/transcription-api/internal/config"
	"github.com/janhq/transcription-api/internal/infrastructure/notifier"
)

var infrastructureSet = wire.NewSet(
	newDatabase,
	newRedisClient,
	newStorage,
	newAuthValidator,
	newMediaRepository,
	newJobQueue,
	newLocker,
	notifier.NewHub,
	newEmitter,
	newRelay,
	newCrontab,
	newReadinessChecks,
)

var applicationSet = wire.NewSet(
	newMediaService,
	newWorkerPools,
	newHTTPServer,
	NewApplication,
)

// BuildApplication declares the same graph buildApplication assembles by hand.
func BuildApplication(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Application, func(), error) {
	wire.Build(
		infrastructureSet,
		applicationSet,
	)
	return nil, nil, nil
}
