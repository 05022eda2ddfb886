// Package daemon composes a full chat session from its parts using fx:
// profile lock, logger, cache, socket connector and session orchestrator.
package daemon

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"dormchat/internal/bus"
	"dormchat/internal/config"
	"dormchat/internal/convo"
	"dormchat/internal/lock"
	"dormchat/internal/logging"
	"dormchat/internal/outbox"
	"dormchat/internal/profile"
	"dormchat/internal/rest"
	"dormchat/internal/roster"
	"dormchat/internal/session"
	"dormchat/internal/status"
	"dormchat/internal/store"
	"dormchat/internal/transport"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	ProfileName string

	// QuietLogging keeps log output off stderr. Set when the process also
	// runs the terminal UI.
	QuietLogging bool
}

// Module returns the fx module composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideConnector,
			provideRESTClient,
			provideConvoStore,
			provideRoster,
			provideSender,
			provideSession,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	return config.Load(profile.ProfileConfigPath(p.ProfileName))
}

func provideLogger(p Params) (*zap.Logger, error) {
	if p.QuietLogging {
		return logging.NewFileOnly(profile.LogPath(p.ProfileName), p.ProfileName)
	}
	return logging.New(profile.LogPath(p.ProfileName), p.ProfileName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.ProfileName); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.ProfileName))
	l, err := lock.Acquire(profile.Dir(p.ProfileName))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := profile.DBPath(p.ProfileName)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideConnector(cfg *config.Config, machine *status.Machine, b *bus.Bus, logger *zap.Logger) *transport.Connector {
	return transport.New(cfg.WSBaseURL, cfg.UserID, machine, b, logger)
}

func provideRESTClient(cfg *config.Config) *rest.Client {
	return rest.NewClient(cfg.APIBaseURL)
}

func provideConvoStore() *convo.Store {
	return convo.NewStore()
}

func provideRoster(cfg *config.Config, b *bus.Bus) *roster.Registry {
	return roster.NewRegistry(cfg.UserID, b)
}

func provideSender(cfg *config.Config, conn *transport.Connector, messages *convo.Store, contacts *roster.Registry, b *bus.Bus, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(cfg.UserID, conn, messages, contacts, b, logger)
}

func provideSession(cfg *config.Config, conn *transport.Connector, api *rest.Client, messages *convo.Store, contacts *roster.Registry, sender *outbox.Sender, db *store.DB, b *bus.Bus, logger *zap.Logger) *session.Session {
	return session.New(session.Params{
		UserID:         cfg.UserID,
		Connector:      conn,
		API:            api,
		Messages:       messages,
		Contacts:       contacts,
		Sender:         sender,
		Cache:          db,
		Bus:            b,
		Logger:         logger,
		ContactRefresh: time.Duration(cfg.ContactRefresh) * time.Second,
	})
}

func registerLifecycle(lc fx.Lifecycle, s *session.Session, lk *lock.Lock, db *store.DB, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Connect in the background: the daemon must come up even when
			// the chat server is unreachable, and the connector retries.
			go func() {
				if err := s.Start(context.Background()); err != nil {
					logger.Error("session start failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			s.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
