package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/smarthome-bridge/smarthome-bridge/internal/api"
	"github.com/smarthome-bridge/smarthome-bridge/internal/auth"
	"github.com/smarthome-bridge/smarthome-bridge/internal/config"
	"github.com/smarthome-bridge/smarthome-bridge/internal/localapi"
	"github.com/smarthome-bridge/smarthome-bridge/internal/push"
	"github.com/smarthome-bridge/smarthome-bridge/internal/state"
	"github.com/smarthome-bridge/smarthome-bridge/internal/storage"
)

func main() {
	// Command line flags
	var configFile string
	flag.StringVar(&configFile, "config", "config/bridge.yml", "Configuration file path")
	flag.Parse()

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// Load configuration
	cfg, err := config.Load(configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	endpoints, err := cfg.Endpoints()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to resolve environment endpoints")
	}
	log.Info().
		Str("environment", cfg.Environment).
		Str("base_url", endpoints.BaseURL).
		Msg("Environment selected")

	// Open credential store
	creds, err := storage.NewFileStore(cfg.Storage.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open credential store")
	}
	defer creds.Close()

	// Auth client and session manager
	authClient, err := api.NewAuthClient(endpoints.AuthURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create auth client")
	}
	session := auth.NewSessionManager(creds, authClient)

	// Directory client with connectivity pre-flight
	checker, err := api.NewDialChecker(endpoints.BaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create connectivity checker")
	}
	directory, err := api.NewClient(endpoints.BaseURL, session, checker)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create directory client")
	}

	// Device state store
	store := state.NewStore(directory)

	// Create context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// WaitGroup for services
	var wg sync.WaitGroup

	// Start the store actor
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := store.Run(ctx); err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("Device store stopped")
		}
	}()

	// Start local API server
	apiServer := localapi.NewServer(store)
	wg.Add(1)
	go func() {
		defer wg.Done()
		addr := fmt.Sprintf("%s:%d", cfg.LocalAPI.Host, cfg.LocalAPI.Port)
		if err := apiServer.ListenAndServe(addr); err != nil {
			log.Error().Err(err).Msg("Local API server stopped")
		}
	}()

	// Push listeners: MQTT is the production transport, NATS is used by
	// staging rigs. Both feed the store's merge entry point.
	var listeners []push.Listener

	if cfg.MQTT.BrokerURL != "" {
		mqttListener := push.NewMQTTListener(cfg.MQTT, store.ApplyShadow)
		listeners = append(listeners, mqttListener)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := mqttListener.Start(ctx); err != nil && err != context.Canceled {
				log.Error().Err(err).Msg("MQTT listener stopped")
			}
		}()
	} else {
		log.Info().Msg("MQTT not configured, shadow deltas will arrive by poll only")
	}

	if cfg.NATS.URL != "" {
		log.Info().Str("url", cfg.NATS.URL).Msg("Connecting to NATS...")

		nc, err := nats.Connect(cfg.NATS.URL,
			nats.Name("smarthome-bridge"),
			nats.UserInfo(cfg.NATS.Username, cfg.NATS.Password),
			nats.ReconnectWait(cfg.NATS.ReconnectInterval),
			nats.MaxReconnects(cfg.NATS.MaxReconnects),
			nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
				log.Warn().Err(err).Msg("Disconnected from NATS")
			}),
			nats.ReconnectHandler(func(nc *nats.Conn) {
				log.Info().Msg("Reconnected to NATS")
			}),
		)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to connect to NATS, continuing without NATS support")
		} else {
			defer nc.Close()

			natsListener := push.NewNATSListener(nc, store.ApplyShadow)
			for _, subject := range cfg.NATS.Subjects {
				if err := natsListener.Subscribe(subject); err != nil {
					log.Error().Err(err).Str("subject", subject).Msg("NATS subscribe failed")
				}
			}
			listeners = append(listeners, natsListener)

			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := natsListener.Start(ctx); err != nil && err != context.Canceled {
					log.Error().Err(err).Msg("NATS listener stopped")
				}
			}()
		}
	}

	// Bootstrap the device cache and push subscriptions
	wg.Add(1)
	go func() {
		defer wg.Done()
		bootstrap(ctx, cfg, creds, store, directory, listeners)
	}()

	// Wait for signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Local API shutdown failed")
	}

	wg.Wait()
	log.Info().Msg("Bridge stopped")
}

// bootstrap loads the tracked device ids, fills the cache, fetches the
// push-channel credentials per asset, and subscribes to each device's
// shadow topic.
func bootstrap(ctx context.Context, cfg *config.Config, creds storage.Store, store *state.Store, directory *api.Client, listeners []push.Listener) {
	assets, err := storage.AssetDeviceMap(creds)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read persisted asset map")
		assets = map[string][]string{}
	}

	// Config assets fill gaps the persisted map doesn't cover.
	for _, asset := range cfg.Assets {
		if _, ok := assets[asset.ID]; !ok {
			assets[asset.ID] = asset.DeviceIDs
		}
	}

	if len(assets) == 0 {
		log.Warn().Msg("No assets configured, nothing to track")
		return
	}

	var ids []string
	for _, deviceIDs := range assets {
		ids = append(ids, deviceIDs...)
	}

	devices := store.FetchAll(ctx, ids)

	for assetID := range assets {
		if _, err := directory.FetchCognitoCredentials(ctx, assetID); err != nil {
			log.Warn().
				Err(err).
				Str("asset_id", assetID).
				Msg("Failed to fetch push credentials for asset")
		}
	}

	for _, device := range devices {
		if device.TopicName == "" {
			continue
		}
		for _, l := range listeners {
			if err := l.Subscribe(device.TopicName); err != nil {
				log.Error().
					Err(err).
					Str("topic", device.TopicName).
					Msg("Shadow subscribe failed")
			}
		}
	}
}
