package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jrsteele09/go-auth-client/credstore"
	"github.com/jrsteele09/go-auth-client/events"
	autherrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/token"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultScheme = "Bearer"
	DefaultSkew   = 30 * time.Second

	maxDrainBytes = 64 << 10
)

var _ http.RoundTripper = (*Interceptor)(nil)

// Renewer exchanges an access token that is about to expire for a new one.
// observed is the token the caller saw; implementations may return a newer
// token without contacting the provider if it has already been replaced.
type Renewer interface {
	Renew(ctx context.Context, observed string) (string, error)
}

// Interceptor attaches the cached access token to outgoing requests and turns
// a 401 from the backend into a local sign-out.
type Interceptor struct {
	base    http.RoundTripper
	cache   *token.Cache
	store   credstore.Store
	bus     *events.UnauthorizedBus
	renewer Renewer
	scheme  string
	skew    time.Duration
	nowFunc func() time.Time
	logger  zerolog.Logger
}

type Option func(*Interceptor)

func WithBase(base http.RoundTripper) Option {
	return func(i *Interceptor) {
		i.base = base
	}
}

// WithScheme sets the Authorization scheme, e.g. "Token" for backends that do
// not speak Bearer.
func WithScheme(scheme string) Option {
	return func(i *Interceptor) {
		i.scheme = scheme
	}
}

// WithRenewer enables renewing stale tokens before a request is sent.
func WithRenewer(r Renewer) Option {
	return func(i *Interceptor) {
		i.renewer = r
	}
}

func WithSkew(skew time.Duration) Option {
	return func(i *Interceptor) {
		i.skew = skew
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(i *Interceptor) {
		i.nowFunc = now
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(i *Interceptor) {
		i.logger = logger
	}
}

func NewInterceptor(cache *token.Cache, store credstore.Store, bus *events.UnauthorizedBus, opts ...Option) *Interceptor {
	i := &Interceptor{
		base:    http.DefaultTransport,
		cache:   cache,
		store:   store,
		bus:     bus,
		scheme:  DefaultScheme,
		skew:    DefaultSkew,
		nowFunc: time.Now,
		logger:  log.Logger,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Client returns an *http.Client whose transport is i.
func (i *Interceptor) Client(timeout time.Duration) *http.Client {
	return &http.Client{Transport: i, Timeout: timeout}
}

func (i *Interceptor) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	tok, err := i.accessToken(ctx)
	if err != nil {
		closeBody(req)
		return nil, err
	}

	out := req.Clone(ctx)
	if tok != "" {
		out.Header.Set("Authorization", i.scheme+" "+tok)
	}

	resp, err := i.base.RoundTrip(out)
	if err != nil {
		return nil, autherrors.Wrapf(autherrors.ErrNetwork, "[Interceptor.RoundTrip] %s %s: %v", req.Method, req.URL.Path, err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		i.reject(ctx, req, resp, tok)
		return nil, autherrors.Wrapf(autherrors.ErrUnauthorized, "[Interceptor.RoundTrip] %s %s", req.Method, req.URL.Path)
	}
	return resp, nil
}

// accessToken returns the token to attach, loading the cache from the store
// on first use and renewing a stale token when a Renewer is configured.
func (i *Interceptor) accessToken(ctx context.Context) (string, error) {
	entry, err := i.cache.EnsureLoaded(func() (token.Entry, error) {
		rec, err := credstore.LoadRecord(ctx, i.store)
		if err != nil || rec == nil {
			return token.Entry{}, err
		}
		return token.Entry{AccessToken: rec.AccessToken, ExpiresAt: rec.ExpiresAt}, nil
	})
	if err != nil {
		// unreadable storage means unauthenticated, not a failed request
		i.logger.Warn().Err(err).Msg("credential store unreadable, sending request without a token")
		return "", nil
	}

	if i.renewer == nil || !entry.Stale(i.nowFunc(), i.skew) {
		return entry.AccessToken, nil
	}

	renewed, err := i.renewer.Renew(ctx, entry.AccessToken)
	switch {
	case err == nil:
		return renewed, nil
	case autherrors.Is(err, autherrors.ErrNoSession):
		// nobody is signed in to renew for; let the backend decide
		return entry.AccessToken, nil
	default:
		return "", err
	}
}

// reject clears every trace of the rejected credential before announcing it,
// so subscribers never observe a token the backend has refused. A rejection
// of a token that has since been replaced, by a renewal or a new sign-in,
// leaves the current credential alone.
func (i *Interceptor) reject(ctx context.Context, req *http.Request, resp *http.Response, sent string) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))
	_ = resp.Body.Close()

	reason := fmt.Sprintf("%d %s %s", resp.StatusCode, req.Method, req.URL.Path)
	if !i.cache.CompareAndSet(sent, token.Entry{}) {
		i.logger.Debug().Str("reason", reason).Msg("rejected token already replaced, ignoring")
		return
	}
	if err := credstore.ClearRecord(context.WithoutCancel(ctx), i.store); err != nil {
		i.logger.Error().Err(err).Msg("credential record not cleared after 401")
	}

	i.logger.Info().Str("reason", reason).Msg("backend rejected credential")
	i.bus.Emit(reason)
}

func closeBody(req *http.Request) {
	if req.Body != nil {
		_ = req.Body.Close()
	}
}
