package transport_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-client/authstate"
	"github.com/jrsteele09/go-auth-client/controller"
	"github.com/jrsteele09/go-auth-client/credstore"
	"github.com/jrsteele09/go-auth-client/events"
	autherrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/provider"
	"github.com/jrsteele09/go-auth-client/server"
	"github.com/jrsteele09/go-auth-client/token"
	"github.com/jrsteele09/go-auth-client/transport"
	"github.com/jrsteele09/go-auth-client/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sharedSecret = "demo-shared-secret"

var demoCreds = provider.Credentials{Username: "demo@demo.com", Password: "demo123"}

type fakeClock struct {
	lock sync.Mutex
	now  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.now = c.now.Add(d)
}

type countingProvider struct {
	*provider.Direct
	refreshes  atomic.Int32
	refreshErr error
}

func (p *countingProvider) Refresh(ctx context.Context, s *provider.Session) (*provider.Session, error) {
	p.refreshes.Add(1)
	if p.refreshErr != nil {
		return nil, p.refreshErr
	}
	return p.Direct.Refresh(ctx, s)
}

type testFixture struct {
	clock    *fakeClock
	api      *server.Server
	apiURL   string
	store    *credstore.MemoryStore
	cache    *token.Cache
	bus      *events.UnauthorizedBus
	provider *countingProvider
	machine  *authstate.Machine
	client   *transport.Client
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	api := server.New(token.NewMinter(token.NewHMACSigner(sharedSecret)), users.DemoCredentials())
	hs := httptest.NewServer(api)
	t.Cleanup(hs.Close)

	f := setupClient(t, credstore.NewMemoryStore(), hs.URL)
	f.api = api
	return f
}

// setupClient builds one client process around store; calling it twice with
// the same store simulates an app relaunch.
func setupClient(t *testing.T, store *credstore.MemoryStore, apiURL string) *testFixture {
	t.Helper()
	clock := &fakeClock{now: time.Now()}
	minter := token.NewMinter(token.NewHMACSigner(sharedSecret), token.WithTTL(10*time.Minute), token.WithNowFunc(clock.Now))
	direct := provider.NewDirect(provider.TableChecker{Table: users.DemoCredentials()}, minter, provider.WithDirectNowFunc(clock.Now))

	f := &testFixture{
		clock:    clock,
		apiURL:   apiURL,
		store:    store,
		cache:    token.NewCache(),
		bus:      events.NewUnauthorizedBus(),
		provider: &countingProvider{Direct: direct},
	}
	f.machine = authstate.New(controller.New(f.provider, store), f.cache, f.bus)
	t.Cleanup(f.machine.Close)

	interceptor := transport.NewInterceptor(f.cache, store, f.bus,
		transport.WithRenewer(f.machine),
		transport.WithSkew(time.Minute),
		transport.WithNowFunc(clock.Now),
	)
	f.client = transport.NewClient(apiURL, interceptor.Client(5*time.Second))
	return f
}

func (f *testFixture) signIn(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	f.machine.Initialize(ctx)
	require.NoError(t, f.machine.SignIn(ctx, demoCreds))
}

func TestInterceptor_AttachesToken(t *testing.T) {
	f := setupTestFixture(t)
	f.signIn(t)

	var me users.Profile
	require.NoError(t, f.client.Get(context.Background(), server.RouteAPIMe, &me))
	assert.Equal(t, "demo@demo.com", me.Email)
	assert.Equal(t, f.machine.State().User.ID, me.ID)

	var created server.Item
	require.NoError(t, f.client.Post(context.Background(), server.RouteAPIItems, map[string]string{"name": "stretch"}, &created))
	var items []server.Item
	require.NoError(t, f.client.Get(context.Background(), server.RouteAPIItems, &items))
	require.Len(t, items, 1)
	assert.Equal(t, created.ID, items[0].ID)
	require.NoError(t, f.client.Delete(context.Background(), "/api/items/"+created.ID))
}

func TestInterceptor_UnauthorizedCascade(t *testing.T) {
	f := setupTestFixture(t)
	f.signIn(t)
	require.NoError(t, f.api.RevokeToken(f.cache.Token()))

	err := f.client.Get(context.Background(), server.RouteAPIMe, nil)
	assert.ErrorIs(t, err, autherrors.ErrUnauthorized)

	s := f.machine.State()
	assert.Equal(t, authstate.StatusSignedOut, s.Status)
	assert.Empty(t, s.Error)
	assert.Empty(t, f.cache.Token())
	assert.Equal(t, 0, f.store.Len())

	relaunched := setupClient(t, f.store, f.apiURL)
	relaunched.machine.Initialize(context.Background())
	assert.Equal(t, authstate.StatusSignedOut, relaunched.machine.State().Status)
}

func TestInterceptor_UnauthenticatedRequest(t *testing.T) {
	f := setupTestFixture(t)
	f.machine.Initialize(context.Background())

	var hits atomic.Int32
	f.bus.Subscribe(func(string) { hits.Add(1) })

	err := f.client.Get(context.Background(), server.RouteAPIMe, nil)
	assert.ErrorIs(t, err, autherrors.ErrUnauthorized)
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, authstate.StatusSignedOut, f.machine.State().Status)
}

func TestInterceptor_RejectionOfReplacedTokenKeepsSession(t *testing.T) {
	var machine atomic.Pointer[authstate.Machine]
	hs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// the session renews while this request is still in flight
		assert.NoError(t, machine.Load().RefreshToken(r.Context()))
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(hs.Close)
	f := setupClient(t, credstore.NewMemoryStore(), hs.URL)
	machine.Store(f.machine)
	f.signIn(t)
	sent := f.cache.Token()

	var hits atomic.Int32
	unsubscribe := f.bus.Subscribe(func(string) { hits.Add(1) })
	defer unsubscribe()

	err := f.client.Get(context.Background(), server.RouteAPIMe, nil)
	assert.ErrorIs(t, err, autherrors.ErrUnauthorized)

	renewed := f.cache.Token()
	require.NotEmpty(t, renewed)
	assert.NotEqual(t, sent, renewed)
	assert.Equal(t, int32(0), hits.Load())
	assert.Equal(t, authstate.StatusSignedIn, f.machine.State().Status)

	rec, err := credstore.LoadRecord(context.Background(), f.store)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, renewed, rec.AccessToken)
}

func TestInterceptor_ConcurrentStaleRequestsRefreshOnce(t *testing.T) {
	f := setupTestFixture(t)
	f.signIn(t)
	stale := f.cache.Token()
	f.clock.Advance(9*time.Minute + 30*time.Second)

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.client.Get(context.Background(), server.RouteAPIMe, nil)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), f.provider.refreshes.Load())
	assert.NotEqual(t, stale, f.cache.Token())
	assert.Equal(t, authstate.StatusSignedIn, f.machine.State().Status)
}

func TestInterceptor_RenewFailureFailsRequest(t *testing.T) {
	f := setupTestFixture(t)
	f.signIn(t)
	f.provider.refreshErr = autherrors.ErrRefreshFailed
	f.clock.Advance(time.Hour)

	err := f.client.Get(context.Background(), server.RouteAPIMe, nil)
	assert.ErrorIs(t, err, autherrors.ErrRefreshFailed)
	assert.Equal(t, authstate.StatusSignedOut, f.machine.State().Status)
	assert.Equal(t, 0, f.store.Len())
}

func TestInterceptor_LoadsPersistedTokenLazily(t *testing.T) {
	var seen atomic.Value
	hs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen.Store(r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(hs.Close)

	store := credstore.NewMemoryStore()
	require.NoError(t, credstore.SaveRecord(context.Background(), store, credstore.Record{
		AccessToken:  "persisted",
		RefreshToken: "r",
		Profile:      users.Profile{ID: "u1"},
		ProviderID:   "direct",
	}))

	interceptor := transport.NewInterceptor(token.NewCache(), store, events.NewUnauthorizedBus(), transport.WithScheme("Token"))
	client := transport.NewClient(hs.URL, interceptor.Client(time.Second))

	require.NoError(t, client.Get(context.Background(), "/anything", nil))
	assert.Equal(t, "Token persisted", seen.Load())
}

func TestInterceptor_NetworkError(t *testing.T) {
	hs := httptest.NewServer(http.NotFoundHandler())
	url := hs.URL
	hs.Close()

	interceptor := transport.NewInterceptor(token.NewCache(), credstore.NewMemoryStore(), events.NewUnauthorizedBus())
	client := transport.NewClient(url, interceptor.Client(time.Second))

	err := client.Get(context.Background(), "/", nil)
	assert.ErrorIs(t, err, autherrors.ErrNetwork)
}

func TestClient_StatusError(t *testing.T) {
	f := setupTestFixture(t)
	f.signIn(t)

	err := f.client.Get(context.Background(), "/api/items/missing", nil)
	var se *transport.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.Code)
}
