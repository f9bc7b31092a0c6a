package authstate

import (
	"testing"

	"github.com/jrsteele09/go-auth-client/provider"
	"github.com/jrsteele09/go-auth-client/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bogusAction struct{}

func (bogusAction) isAction() {}

func testSession() *provider.Session {
	return &provider.Session{
		User:        users.Profile{ID: "user-1", Email: "demo@demo.com", Roles: users.NewRoles("user")},
		AccessToken: "access-1",
		Provider:    provider.IDDirect,
	}
}

func TestReduce_UnknownActionPanics(t *testing.T) {
	assert.Panics(t, func() {
		reduce(State{}, bogusAction{})
	})
}

// holdsSessionInvariant reports whether s is signed in exactly when it
// carries both a user and a token.
func holdsSessionInvariant(s State) bool {
	hasSession := s.User != nil && s.AccessToken != ""
	return (s.Status == StatusSignedIn) == hasSession
}

func TestReduce_Transitions(t *testing.T) {
	signedIn := reduce(State{Status: StatusSigningIn, Error: "old"}, signInSucceeded{session: testSession()})

	tests := []struct {
		name   string
		from   State
		action action
		check  func(t *testing.T, s State)
	}{
		{
			name:   "init started",
			from:   State{Status: StatusUninitialized},
			action: initStarted{},
			check: func(t *testing.T, s State) {
				assert.Equal(t, StatusInitializing, s.Status)
			},
		},
		{
			name:   "init resolved with a session",
			from:   State{Status: StatusInitializing},
			action: initResolved{session: testSession()},
			check: func(t *testing.T, s State) {
				assert.Equal(t, StatusSignedIn, s.Status)
				assert.Equal(t, "access-1", s.AccessToken)
			},
		},
		{
			name:   "init resolved without a session",
			from:   State{Status: StatusInitializing},
			action: initResolved{},
			check: func(t *testing.T, s State) {
				assert.Equal(t, StatusSignedOut, s.Status)
				assert.Nil(t, s.User)
			},
		},
		{
			name:   "sign-in started keeps the last error",
			from:   State{Status: StatusError, Error: "not implemented"},
			action: signInStarted{},
			check: func(t *testing.T, s State) {
				assert.Equal(t, StatusSigningIn, s.Status)
				assert.Equal(t, "not implemented", s.Error)
			},
		},
		{
			name:   "sign-in success clears the error",
			from:   State{Status: StatusSigningIn, Error: "old"},
			action: signInSucceeded{session: testSession(), warning: "not saved"},
			check: func(t *testing.T, s State) {
				assert.Equal(t, StatusSignedIn, s.Status)
				require.NotNil(t, s.User)
				assert.Equal(t, "user-1", s.User.ID)
				assert.Empty(t, s.Error)
				assert.Equal(t, "not saved", s.Warning)
			},
		},
		{
			name:   "sign-in failure records the message",
			from:   State{Status: StatusSigningIn},
			action: signInFailed{message: "bad password"},
			check: func(t *testing.T, s State) {
				assert.Equal(t, StatusSignedOut, s.Status)
				assert.Equal(t, "bad password", s.Error)
			},
		},
		{
			name:   "cancelled sign-in records nothing",
			from:   State{Status: StatusSigningIn},
			action: signInFailed{},
			check: func(t *testing.T, s State) {
				assert.Equal(t, StatusSignedOut, s.Status)
				assert.Empty(t, s.Error)
			},
		},
		{
			name:   "fatal sign-in failure parks in error",
			from:   State{Status: StatusSigningIn},
			action: signInFailed{message: "not implemented", fatal: true},
			check: func(t *testing.T, s State) {
				assert.Equal(t, StatusError, s.Status)
				assert.Equal(t, "not implemented", s.Error)
			},
		},
		{
			name:   "sign-out started drops the session at once",
			from:   signedIn,
			action: signOutStarted{},
			check: func(t *testing.T, s State) {
				assert.Equal(t, StatusSigningOut, s.Status)
				assert.Nil(t, s.User)
				assert.Empty(t, s.AccessToken)
			},
		},
		{
			name:   "signed out drops the session and warning but keeps the error",
			from:   State{Status: StatusSigningOut, Error: "bad password", Warning: "w"},
			action: signedOut{},
			check: func(t *testing.T, s State) {
				assert.Equal(t, StatusSignedOut, s.Status)
				assert.Nil(t, s.User)
				assert.Empty(t, s.Warning)
				assert.Equal(t, "bad password", s.Error)
			},
		},
		{
			name:   "refresh keeps the user",
			from:   signedIn,
			action: tokenRefreshed{session: &provider.Session{AccessToken: "access-2"}},
			check: func(t *testing.T, s State) {
				assert.Equal(t, StatusSignedIn, s.Status)
				assert.Equal(t, "access-2", s.AccessToken)
				assert.Equal(t, "user-1", s.User.ID)
			},
		},
		{
			name:   "refresh failure signs out",
			from:   signedIn,
			action: refreshFailed{},
			check: func(t *testing.T, s State) {
				assert.Equal(t, StatusSignedOut, s.Status)
				assert.Nil(t, s.User)
				assert.Empty(t, s.AccessToken)
			},
		},
		{
			name:   "clear error leaves a signed-in session alone",
			from:   signedIn,
			action: clearError{},
			check: func(t *testing.T, s State) {
				assert.Equal(t, StatusSignedIn, s.Status)
			},
		},
		{
			name:   "clear error leaves the error status",
			from:   State{Status: StatusError, Error: "not implemented"},
			action: clearError{},
			check: func(t *testing.T, s State) {
				assert.Equal(t, StatusSignedOut, s.Status)
				assert.Empty(t, s.Error)
			},
		},
		{
			name:   "storage warning keeps the session",
			from:   signedIn,
			action: storageWarning{message: "keychain locked"},
			check: func(t *testing.T, s State) {
				assert.Equal(t, StatusSignedIn, s.Status)
				assert.Equal(t, "keychain locked", s.Warning)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.True(t, holdsSessionInvariant(tt.from), "bad starting state %+v", tt.from)
			s := reduce(tt.from, tt.action)
			tt.check(t, s)
			assert.True(t, holdsSessionInvariant(s), "invariant broken in state %+v", s)
		})
	}
}

func TestReduce_SessionIsCopied(t *testing.T) {
	session := testSession()
	s := reduce(State{}, initResolved{session: session})
	session.User.Email = "changed@demo.com"
	assert.Equal(t, "demo@demo.com", s.User.Email)
}
