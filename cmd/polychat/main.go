package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/normyan0809/Chat-in-different-roles/internal/agent"
	"github.com/normyan0809/Chat-in-different-roles/internal/auth"
	"github.com/normyan0809/Chat-in-different-roles/internal/config"
	"github.com/normyan0809/Chat-in-different-roles/internal/dispatch"
	"github.com/normyan0809/Chat-in-different-roles/internal/models"
	"github.com/normyan0809/Chat-in-different-roles/internal/roster"
	"github.com/normyan0809/Chat-in-different-roles/internal/router"
	"github.com/normyan0809/Chat-in-different-roles/internal/session"
	"github.com/normyan0809/Chat-in-different-roles/internal/store"
	"github.com/normyan0809/Chat-in-different-roles/internal/transport"
)

// dbSaver binds the dispatcher's save hook to one account row.
type dbSaver struct {
	db     store.DataStore
	userID uuid.UUID
}

func (s dbSaver) SaveState(ctx context.Context, _ string, st *models.State) error {
	return s.db.SaveState(ctx, s.userID, st)
}

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx := context.Background()

	// Open the data store: Postgres when configured, SQLite otherwise
	var db store.DataStore
	if cfg.DatabaseURL != "" {
		pg, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		db = pg
		logger.Info().Msg("connected to PostgreSQL")
	} else {
		sq, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		db = sq
		logger.Info().Str("path", cfg.SQLitePath).Msg("using SQLite")
	}
	defer db.Close()

	// Log in, registering the account on first run
	username, password := cfg.Username, cfg.Password
	if username == "" {
		username, password = "dev", "development"
		logger.Warn().Msg("POLYCHAT_USER not set, using the dev account")
	}

	authSvc := auth.NewService(db, logger)
	account, st, err := authSvc.Login(ctx, username, password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		account, st, err = authSvc.Register(ctx, username, password, cfg.DisplayName)
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("account bootstrap failed")
	}

	rs := roster.New(st.Profile.ID)
	rs.Load(st.Contacts)

	// Scripted responder; without a key the assistant answers with apologies
	var responder dispatch.Responder
	if cfg.GeminiAPIKey != "" {
		g, err := agent.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("gemini client failed")
		}
		responder = g
	} else {
		logger.Warn().Msg("GEMINI_API_KEY not set, assistant replies are disabled")
	}

	ws := transport.NewWS(":"+cfg.Port, transport.StaticResolver(cfg.Peers), logger)
	manager := session.NewManager(ws, logger)
	rt := router.New(rs, logger)
	dispatcher := dispatch.New(
		st.Profile,
		rs,
		rt,
		manager,
		responder,
		dbSaver{db: db, userID: account.ID},
		manager.Events(),
		logger,
	)

	if err := manager.Initialize(ctx, st.Profile.ID, dispatcher.HandshakeProfile); err != nil {
		logger.Fatal().Err(err).Msg("transport open failed")
	}

	// Dial every known peer before the loop starts; events queue up until
	// the dispatcher drains them.
	for _, c := range st.Contacts {
		if !c.IsAgent {
			manager.Connect(ctx, c.ID)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	loopDone := make(chan struct{})
	go func() {
		dispatcher.Run(runCtx)
		close(loopDone)
	}()

	logger.Info().
		Str("port", cfg.Port).
		Str("env", cfg.Env).
		Str("user", account.Username).
		Int("contacts", len(st.Contacts)).
		Msg("polychat up")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down...")

	manager.Disconnect()
	cancel()
	<-loopDone

	// Final save after the loop has quiesced
	final := &models.State{Profile: dispatcher.Profile(), Contacts: rs.Contacts()}
	saveCtx, saveCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer saveCancel()
	if err := db.SaveState(saveCtx, account.ID, final); err != nil {
		logger.Error().Err(err).Msg("final state save failed")
	}

	logger.Info().Msg("stopped")
}
