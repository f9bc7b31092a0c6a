package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jrsteele09/go-auth-client/authstate"
	"github.com/jrsteele09/go-auth-client/broker"
	"github.com/jrsteele09/go-auth-client/controller"
	"github.com/jrsteele09/go-auth-client/credstore"
	"github.com/jrsteele09/go-auth-client/events"
	"github.com/jrsteele09/go-auth-client/internal/config"
	"github.com/jrsteele09/go-auth-client/provider"
	"github.com/jrsteele09/go-auth-client/token"
	"github.com/jrsteele09/go-auth-client/transport"
	"github.com/jrsteele09/go-auth-client/users"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// App is the wired client: one store, one token cache and one bus shared by
// the state machine and the HTTP transport.
type App struct {
	Config      config.Config
	Store       credstore.Store
	Cache       *token.Cache
	Bus         *events.UnauthorizedBus
	Provider    provider.Provider
	Controller  *controller.Controller
	Machine     *authstate.Machine
	Interceptor *transport.Interceptor
	API         *transport.Client

	broker  provider.Broker
	logger  zerolog.Logger
	closers []func() error
}

type Option func(*App)

// WithStore replaces the configured store backend.
func WithStore(store credstore.Store) Option {
	return func(a *App) {
		a.Store = store
	}
}

// WithBroker replaces the loopback broker used by the interactive provider.
func WithBroker(b provider.Broker) Option {
	return func(a *App) {
		a.broker = b
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(a *App) {
		a.logger = logger
	}
}

func New(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	a := &App{
		Config: cfg,
		Cache:  token.NewCache(),
		Bus:    events.NewUnauthorizedBus(),
		logger: log.Logger,
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.Store == nil {
		store, closeStore, err := OpenStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.Store = store
		a.closers = append(a.closers, closeStore)
	}

	p, err := provider.Resolve(cfg.GetProvider(), provider.Builders{
		Direct:      func() (provider.Provider, error) { return a.buildDirect() },
		Interactive: func() (provider.Provider, error) { return a.buildInteractive(ctx) },
	})
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("[app.New] provider: %w", err)
	}
	a.Provider = p

	a.Controller = controller.New(p, a.Store, controller.WithLogger(a.logger))
	a.Machine = authstate.New(a.Controller, a.Cache, a.Bus, authstate.WithLogger(a.logger))
	a.closers = append(a.closers, func() error { a.Machine.Close(); return nil })

	a.Interceptor = transport.NewInterceptor(a.Cache, a.Store, a.Bus,
		transport.WithRenewer(a.Machine),
		transport.WithScheme(cfg.GetAuthScheme()),
		transport.WithSkew(cfg.GetRefreshSkew()),
		transport.WithLogger(a.logger),
	)
	a.API = transport.NewClient(cfg.GetAPIBaseURL(), a.Interceptor.Client(cfg.GetRequestTimeout()))

	a.logger.Debug().Str("provider", p.ID().String()).Str("store", cfg.GetStoreBackend()).Msg("auth client ready")
	return a, nil
}

// Close releases the store and detaches the machine, in reverse build order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) buildDirect() (provider.Provider, error) {
	var checker provider.CredentialChecker
	if url := a.Config.GetRemoteLoginURL(); url != "" {
		checker = provider.RemoteChecker{URL: url, Client: &http.Client{Timeout: a.Config.GetRequestTimeout()}}
	} else {
		table, err := LoadCredentials(a.Config)
		if err != nil {
			return nil, err
		}
		checker = provider.TableChecker{Table: table}
	}
	return provider.NewDirect(checker, NewMinter(a.Config), provider.WithDirectLogger(a.logger)), nil
}

func (a *App) buildInteractive(ctx context.Context) (provider.Provider, error) {
	b := a.broker
	if b == nil {
		loopback, err := broker.NewLoopback(a.Config.GetOIDCRedirectURL(),
			broker.WithTimeout(a.Config.GetLoginTimeout()),
			broker.WithLogger(a.logger),
		)
		if err != nil {
			return nil, err
		}
		b = loopback
	}
	return provider.NewInteractiveFromDiscovery(ctx, provider.DiscoveryConfig{
		Issuer:       a.Config.GetOIDCIssuer(),
		ClientID:     a.Config.GetOIDCClientID(),
		ClientSecret: a.Config.GetOIDCClientSecret(),
		RedirectURL:  a.Config.GetOIDCRedirectURL(),
		Scopes:       a.Config.GetOIDCScopes(),
	}, b, provider.WithInteractiveLogger(a.logger))
}

// NewMinter builds the direct provider's token minter. The demo API uses the
// same settings to verify what the client minted.
func NewMinter(cfg config.DirectConfig) *token.Minter {
	return token.NewMinter(token.NewHMACSigner(cfg.GetTokenSecret()),
		token.WithTTL(cfg.GetTokenTTL()),
		token.WithIssuer(cfg.GetTokenIssuer()),
	)
}

// LoadCredentials reads CREDENTIALS_FILE, or returns the demo account table
// when it is unset.
func LoadCredentials(cfg config.DirectConfig) (*users.CredentialTable, error) {
	path := cfg.GetCredentialsFile()
	if path == "" {
		return users.DemoCredentials(), nil
	}
	table, err := users.LoadCredentialTable(path)
	if err != nil {
		return nil, fmt.Errorf("[app.LoadCredentials] %s: %w", path, err)
	}
	return table, nil
}

// OpenStore opens the configured backend, wrapped in an EncryptedStore when
// an encryption key is set. The returned func releases the backend.
func OpenStore(ctx context.Context, cfg config.StoreConfig) (credstore.Store, func() error, error) {
	var (
		store     credstore.Store
		closeFunc = func() error { return nil }
	)
	switch cfg.GetStoreBackend() {
	case config.StoreMemory:
		store = credstore.NewMemoryStore()
	case config.StoreSQLite:
		s, err := credstore.OpenSQLite(ctx, cfg.GetSQLitePath())
		if err != nil {
			return nil, nil, fmt.Errorf("[app.OpenStore] %w", err)
		}
		store, closeFunc = s, s.Close
	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.GetRedisAddr(),
			Password: cfg.GetRedisPassword(),
			DB:       cfg.GetRedisDB(),
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("[app.OpenStore] redis ping %s: %w", cfg.GetRedisAddr(), err)
		}
		store, closeFunc = credstore.NewRedisStore(client, credstore.WithKeyPrefix(cfg.GetRedisKeyPrefix())), client.Close
	default:
		return nil, nil, fmt.Errorf("[app.OpenStore] unknown backend %q", cfg.GetStoreBackend())
	}

	if key := cfg.GetStoreEncryptionKey(); key != "" {
		enc, err := credstore.NewAESGCMEncryptorFromPassphrase(key)
		if err != nil {
			_ = closeFunc()
			return nil, nil, fmt.Errorf("[app.OpenStore] %w", err)
		}
		store = credstore.NewEncryptedStore(store, enc)
	}
	return store, closeFunc, nil
}
