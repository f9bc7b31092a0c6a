package authstate

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/jrsteele09/go-auth-client/events"
	autherrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/provider"
	"github.com/jrsteele09/go-auth-client/token"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Controller is what the machine needs from the session controller.
type Controller interface {
	ProviderID() provider.ID
	Capabilities() provider.Capabilities
	Authenticate(ctx context.Context, creds provider.Credentials) (*provider.Session, error)
	Save(ctx context.Context, s *provider.Session) error
	SaveTokens(ctx context.Context, s *provider.Session) error
	CurrentUser(ctx context.Context) *provider.Session
	Renew(ctx context.Context) (*provider.Session, error)
	SignOut(ctx context.Context) error
	ClearLocal(ctx context.Context) error
}

// Machine owns the process-wide authentication state. All transitions go
// through reduce while holding the transition lock, so decisions that read
// the status and then act on it are atomic. Store and provider I/O never runs
// under that lock.
//
// Sign-out always wins: it bumps an epoch, and any sign-in or refresh result
// produced under an older epoch is dropped instead of being applied. Writes
// to the credential record happen under the persist lock after an epoch
// check, and sign-out clears the record under the same lock, so a late write
// can never outlive the sign-out that superseded it.
type Machine struct {
	ctrl   Controller
	cache  *token.Cache
	bus    *events.UnauthorizedBus
	logger zerolog.Logger

	persist    sync.Mutex // orders record writes against sign-out; taken before transition
	transition sync.Mutex // serialises transitions and subscriber delivery
	epoch      uint64     // guarded by transition

	mu          sync.RWMutex // guards state and subscribers
	state       State
	subscribers map[int]func(State)
	nextSubID   int

	refresh singleflight.Group

	initOnce    sync.Once
	initStarted atomic.Bool
	initDone    chan struct{}

	unsubscribeBus func()
}

type Option func(*Machine)

func WithLogger(logger zerolog.Logger) Option {
	return func(m *Machine) {
		m.logger = logger
	}
}

// New builds the machine and subscribes it to bus. cache must be the same
// instance the HTTP transport reads.
func New(ctrl Controller, cache *token.Cache, bus *events.UnauthorizedBus, opts ...Option) *Machine {
	m := &Machine{
		ctrl:        ctrl,
		cache:       cache,
		bus:         bus,
		logger:      log.Logger,
		subscribers: make(map[int]func(State)),
		initDone:    make(chan struct{}),
		state: State{
			Status:       StatusUninitialized,
			Provider:     ctrl.ProviderID(),
			Capabilities: ctrl.Capabilities(),
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.unsubscribeBus = bus.Subscribe(m.onUnauthorized)
	return m
}

// Close detaches the machine from the unauthorized bus.
func (m *Machine) Close() {
	m.unsubscribeBus()
}

// State returns the current snapshot.
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Subscribe registers fn to receive every new state, in transition order.
// fn runs synchronously inside the transition and must not call SignIn,
// SignOut, RefreshToken or ClearError itself.
func (m *Machine) Subscribe(fn func(State)) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextSubID
	m.nextSubID++
	m.subscribers[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subscribers, id)
		m.mu.Unlock()
	}
}

// Initialize restores a persisted session. Only the first call does any work;
// later calls wait for it and return.
func (m *Machine) Initialize(ctx context.Context) {
	m.initOnce.Do(func() {
		m.initStarted.Store(true)
		defer close(m.initDone)

		m.transition.Lock()
		m.dispatch(initStarted{})
		m.transition.Unlock()

		s := m.ctrl.CurrentUser(ctx)

		m.transition.Lock()
		defer m.transition.Unlock()
		if s == nil {
			m.cache.Clear()
			m.dispatch(initResolved{})
			return
		}
		// token first, so nobody sees SignedIn without a credential attached
		m.cache.Set(entryFor(s))
		m.dispatch(initResolved{session: s})
	})
	<-m.initDone
}

// WaitInitialized blocks until Initialize has finished or ctx is done.
func (m *Machine) WaitInitialized(ctx context.Context) error {
	select {
	case <-m.initDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SignIn is accepted from SignedOut or Error. A second call while one is
// pending is rejected with ErrSignInInProgress.
func (m *Machine) SignIn(ctx context.Context, creds provider.Credentials) error {
	m.transition.Lock()
	switch m.status() {
	case StatusSignedOut, StatusError:
	case StatusSigningIn:
		m.transition.Unlock()
		return ErrSignInInProgress
	case StatusSignedIn:
		m.transition.Unlock()
		return ErrAlreadySignedIn
	case StatusSigningOut:
		m.transition.Unlock()
		return ErrSigningOut
	default:
		m.transition.Unlock()
		return ErrNotInitialized
	}
	epoch := m.epoch
	m.dispatch(signInStarted{})
	m.transition.Unlock()

	s, err := m.ctrl.Authenticate(ctx, creds)
	if err != nil {
		m.transition.Lock()
		defer m.transition.Unlock()
		if m.epoch != epoch {
			return ErrSignInDiscarded
		}
		m.dispatch(m.signInFailure(err))
		return err
	}

	m.persist.Lock()
	defer m.persist.Unlock()
	if !m.epochIs(epoch) {
		return ErrSignInDiscarded
	}
	var warning string
	if serr := m.ctrl.Save(ctx, s); serr != nil {
		warning = serr.Error()
	}

	m.transition.Lock()
	defer m.transition.Unlock()
	if m.epoch != epoch {
		// the sign-out is waiting on persist and clears what was just saved
		return ErrSignInDiscarded
	}
	m.cache.Set(entryFor(s))
	m.dispatch(signInSucceeded{session: s, warning: warning})
	return nil
}

func (m *Machine) signInFailure(err error) signInFailed {
	switch {
	case autherrors.Is(err, autherrors.ErrInteractiveCancelled):
		m.logger.Info().Msg("interactive sign-in cancelled")
		return signInFailed{}
	case autherrors.Is(err, autherrors.ErrProviderNotImplemented):
		m.logger.Error().Err(err).Str("provider", m.ctrl.ProviderID().String()).
			Msg("sign-in attempted with an unimplemented provider; check AUTH_PROVIDER")
		return signInFailed{message: err.Error(), fatal: true}
	default:
		m.logger.Info().Err(err).Msg("sign-in failed")
		return signInFailed{message: err.Error()}
	}
}

// SignOut clears the in-memory token and the persisted record, even if the
// provider's remote sign-out fails; that error is returned after the state
// has reached SignedOut. Calling it again is harmless. Before Initialize it
// fails with ErrNotInitialized.
func (m *Machine) SignOut(ctx context.Context) error {
	if !m.initStarted.Load() {
		return ErrNotInitialized
	}
	if err := m.WaitInitialized(ctx); err != nil {
		return err
	}

	m.transition.Lock()
	m.beginSignOut()
	m.transition.Unlock()

	return m.finishSignOut(ctx)
}

// beginSignOut must be called with the transition lock held.
func (m *Machine) beginSignOut() {
	m.epoch++
	m.cache.Clear()
	m.dispatch(signOutStarted{})
}

func (m *Machine) finishSignOut(ctx context.Context) error {
	m.persist.Lock()
	err := m.ctrl.SignOut(ctx)
	m.persist.Unlock()

	m.transition.Lock()
	defer m.transition.Unlock()
	m.cache.Clear()
	m.dispatch(signedOut{})
	if autherrors.Is(err, autherrors.ErrStorage) {
		m.dispatch(storageWarning{message: err.Error()})
	}
	if err != nil {
		m.logger.Warn().Err(err).Msg("sign-out completed with errors")
	}
	return err
}

// onUnauthorized reacts to the backend rejecting the credential. A burst of
// 401s collapses into one sign-out: only the first sees StatusSignedIn.
func (m *Machine) onUnauthorized(reason string) {
	m.transition.Lock()
	if m.status() != StatusSignedIn {
		m.transition.Unlock()
		m.logger.Debug().Str("reason", reason).Msg("unauthorized event ignored")
		return
	}
	m.logger.Info().Str("reason", reason).Msg("credential rejected, signing out")
	m.beginSignOut()
	m.transition.Unlock()

	// no error banner: this is an expected lifecycle event
	_ = m.finishSignOut(context.Background())
}

// RefreshToken renews the current access token.
func (m *Machine) RefreshToken(ctx context.Context) error {
	_, err := m.Renew(ctx, m.cache.Token())
	return err
}

// Renew returns a fresh access token, calling the provider only if the cache
// still holds observed. Concurrent callers share one provider call. A
// failed renewal signs the user out.
func (m *Machine) Renew(ctx context.Context, observed string) (string, error) {
	v, err, _ := m.refresh.Do("refresh", func() (any, error) {
		return m.renew(context.WithoutCancel(ctx), observed)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (m *Machine) renew(ctx context.Context, observed string) (string, error) {
	m.transition.Lock()
	status, epoch, current := m.status(), m.epoch, m.cache.Token()
	m.transition.Unlock()

	if status != StatusSignedIn {
		return "", autherrors.Normalize("refresh", autherrors.ErrNoSession)
	}
	if current != observed && current != "" {
		// renewed while the caller was waiting
		return current, nil
	}

	s, err := m.ctrl.Renew(ctx)

	m.persist.Lock()
	defer m.persist.Unlock()
	if err != nil {
		return "", m.refreshFailure(ctx, epoch, err)
	}
	if !m.epochIs(epoch) {
		m.logger.Debug().Msg("refresh finished after sign-out, result dropped")
		return "", ErrRefreshDiscarded
	}
	var warning string
	if serr := m.ctrl.SaveTokens(ctx, s); serr != nil {
		warning = serr.Error()
	}

	m.transition.Lock()
	defer m.transition.Unlock()
	if m.epoch != epoch {
		m.logger.Debug().Msg("refresh finished after sign-out, result dropped")
		return "", ErrRefreshDiscarded
	}
	m.cache.Set(entryFor(s))
	m.dispatch(tokenRefreshed{session: s, warning: warning})
	return s.AccessToken, nil
}

// refreshFailure treats a failed renewal as a sign-out. It must be called
// with the persist lock held.
func (m *Machine) refreshFailure(ctx context.Context, epoch uint64, err error) error {
	m.transition.Lock()
	if m.epoch != epoch {
		m.transition.Unlock()
		m.logger.Debug().Msg("refresh failed after sign-out, result dropped")
		return ErrRefreshDiscarded
	}
	m.logger.Info().Err(err).Msg("refresh failed, signing out")
	m.beginSignOut()
	epoch = m.epoch
	m.transition.Unlock()

	if cerr := m.ctrl.ClearLocal(ctx); cerr != nil {
		m.logger.Error().Err(cerr).Msg("credential record not cleared after failed refresh")
	}

	m.transition.Lock()
	defer m.transition.Unlock()
	if m.epoch == epoch {
		m.dispatch(refreshFailed{})
	}
	return err
}

// ClearError drops the recorded error. Nothing else clears it.
func (m *Machine) ClearError() {
	m.transition.Lock()
	defer m.transition.Unlock()
	m.dispatch(clearError{})
}

func (m *Machine) epochIs(epoch uint64) bool {
	m.transition.Lock()
	defer m.transition.Unlock()
	return m.epoch == epoch
}

func (m *Machine) status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Status
}

// dispatch must be called with the transition lock held.
func (m *Machine) dispatch(a action) {
	m.mu.Lock()
	prev := m.state.Status
	m.state = reduce(m.state, a)
	next := m.state
	subs := make([]func(State), 0, len(m.subscribers))
	for _, fn := range m.subscribers {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	m.logger.Debug().Stringer("from", prev).Stringer("to", next.Status).Msgf("auth state %T", a)
	for _, fn := range subs {
		fn(next)
	}
}

func entryFor(s *provider.Session) token.Entry {
	return token.Entry{AccessToken: s.AccessToken, ExpiresAt: s.ExpiresAt}
}
