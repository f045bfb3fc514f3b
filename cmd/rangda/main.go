package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/layer-3/rangda/adapters/chain"
	"github.com/layer-3/rangda/adapters/deployer"
	"github.com/layer-3/rangda/adapters/events"
	"github.com/layer-3/rangda/adapters/litrelay"
	"github.com/layer-3/rangda/adapters/provider"
	"github.com/layer-3/rangda/adapters/registry"
	"github.com/layer-3/rangda/adapters/store"
	"github.com/layer-3/rangda/config"
	"github.com/layer-3/rangda/ports"
	"github.com/layer-3/rangda/service"
	transport "github.com/layer-3/rangda/transport/http"
)

func main() {
	app := &cli.App{
		Name:  "rangda",
		Usage: "smart account controller with delegated threshold signing",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the YAML configuration file",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}

	log := logrus.New()
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	ctx := context.Background()

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	redisClient := redis.NewClient(opts)
	defer redisClient.Close()

	publisher, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{Client: redisClient},
		watermill.NewStdLogger(false, false),
	)
	if err != nil {
		return fmt.Errorf("failed to create event publisher: %w", err)
	}
	eventPub := events.NewWatermillPublisher(publisher)

	var creds ports.CredentialStore
	switch cfg.CredentialStore {
	case "keyring":
		creds, err = store.NewKeyringStore()
		if err != nil {
			return err
		}
	case "memory":
		creds = store.NewMemoryStore()
	default:
		creds = store.NewRedisStore(redisClient)
	}

	network := litrelay.NewClient(litrelay.Config{
		BaseURL: cfg.SigningNetwork.BaseURL,
		APIKey:  cfg.SigningNetwork.APIKey,
	}, log)
	defer network.Shutdown()

	chainClient, err := chain.Dial(ctx, cfg.RPCURL, cfg.RelayerKey, log)
	if err != nil {
		return err
	}
	defer chainClient.Close()

	providers := []ports.AuthProvider{
		provider.NewGoogleProvider(cfg.Provider.LoginURL, cfg.Provider.RedirectURI),
	}

	sessions := service.NewSessionManager(creds, network, providers, eventPub, log)
	if err := sessions.Start(ctx); err != nil {
		// A cold start with unusable credentials is still a usable process;
		// authentication recovers it.
		log.WithError(err).Warn("session manager started degraded")
	}

	submitter := service.NewRelaySubmitter(chainClient, eventPub, log)
	profiles := service.NewProfileController(
		sessions,
		chainClient,
		registry.NewRedisRegistry(redisClient),
		deployer.NewClient(cfg.DeployerURL),
		submitter,
		eventPub,
		log,
	)

	router := transport.SetupRouter(sessions, profiles, log)

	log.WithField("listen", cfg.Listen).Info("starting server")
	return router.Run(cfg.Listen)
}
