package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"skidoodle/biolink/internal/api"
	"skidoodle/biolink/internal/config"
	"skidoodle/biolink/internal/discord"
	"skidoodle/biolink/internal/logging"
	"skidoodle/biolink/internal/presence"
	"skidoodle/biolink/internal/profile"
	"skidoodle/biolink/internal/spotify"
	"skidoodle/biolink/internal/supervisor"
	"skidoodle/biolink/internal/websocket"
)

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Error("failed to load configuration")
		return err
	}

	closer, err := logging.Setup(logrus.StandardLogger(), logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	})
	if err != nil {
		return fmt.Errorf("configuring logging: %w", err)
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	tree := supervisor.NewTree(logrus.WithField("component", "supervisor"), supervisor.DefaultTreeConfig())
	hub := websocket.NewHub()

	// Presence: store, optional gateway, optional fallback poller, relay to the hub.
	store := presence.NewStore()
	tree.AddPresenceService(store)
	relay := websocket.NewPresenceRelay(store, hub)
	tree.AddPresenceService(relay)

	var session *discord.Session
	if cfg.Discord.Configured() {
		session = discord.NewSession(discord.SessionConfig{
			URL:            cfg.Discord.GatewayURL,
			Token:          cfg.Discord.BotToken,
			UserID:         cfg.Discord.UserID,
			Intents:        cfg.Discord.GatewayIntents,
			MaxAttempts:    cfg.Discord.MaxReconnectAttempts,
			ReconnectDelay: cfg.Discord.ReconnectDelay,
			MissedACKLimit: cfg.Discord.MissedACKLimit,
		}, nil, store)
	}

	var gateway api.GatewayState
	if session != nil {
		gateway = session
	}
	health := api.NewHealthChecker(gateway, cfg.Spotify.Configured())

	if session != nil {
		tree.AddPresenceService(supervisor.NewGatewayService(session, health.SetFatal))
	}
	if cfg.Discord.PollerEnabled {
		gate := func() bool {
			return session == nil || session.State() != discord.StateReady
		}
		tree.AddPresenceService(discord.NewPoller(discord.DemoSource{}, store, cfg.Discord.PollInterval, gate))
	}

	// Spotify: the poller only runs with credentials; the HTTP endpoints
	// report "not configured" without them.
	spotifyClient := spotify.NewClient(spotify.NewTokenManager(spotify.Credentials{
		ClientID:     cfg.Spotify.ClientID,
		ClientSecret: cfg.Spotify.ClientSecret,
		RefreshToken: cfg.Spotify.RefreshToken,
	}))
	initial := []websocket.InitialState{relay.LastState}
	if cfg.Spotify.Configured() {
		poller := websocket.NewPoller(spotifyClient, hub, cfg.Spotify.PollInterval, cfg.RT)
		tree.AddSpotifyService(poller)
		initial = append(initial, poller.LastState)
	}

	// API: profile watcher, hub, HTTP server.
	docs, err := profile.NewStore(cfg.ProfileFile)
	if err != nil {
		logrus.WithError(err).Error("failed to load profile file")
		return err
	}
	tree.AddAPIService(docs)
	tree.AddAPIService(hub)

	router := api.NewRouter(api.Options{
		Spotify:            spotifyClient,
		Presence:           store,
		Discord:            discord.NewProfileClient(cfg.Discord.BotToken, cfg.Discord.UserID),
		Docs:               docs,
		Health:             health,
		Websocket:          websocket.NewHandler(hub, cfg.AllowedOrigins, initial...),
		AllowedOrigins:     cfg.AllowedOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})
	tree.AddAPIService(api.NewServer(":"+cfg.ServerPort, router))

	logrus.WithFields(logrus.Fields{
		"port":    cfg.ServerPort,
		"gateway": session != nil,
		"spotify": cfg.Spotify.Configured(),
		"rt":      cfg.RT,
	}).Info("starting biolink")

	err = tree.Serve(ctx)
	if ctx.Err() != nil && !errors.Is(err, discord.ErrReconnectBudgetExhausted) {
		logrus.Info("server shut down gracefully")
		return nil
	}
	if err != nil {
		logrus.WithError(err).Error("supervisor tree terminated")
		return err
	}
	return nil
}
