package authstate

import (
	"github.com/jrsteele09/go-auth-client/provider"
	"github.com/jrsteele09/go-auth-client/users"
)

type Status int

const (
	StatusUninitialized Status = iota
	StatusInitializing
	StatusSignedOut
	StatusSigningIn
	StatusSignedIn
	StatusSigningOut
	StatusError
)

var statusNames = map[Status]string{
	StatusUninitialized: "Uninitialized",
	StatusInitializing:  "Initializing",
	StatusSignedOut:     "SignedOut",
	StatusSigningIn:     "SigningIn",
	StatusSignedIn:      "SignedIn",
	StatusSigningOut:    "SigningOut",
	StatusError:         "Error",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "Unknown"
}

// State is a read-only snapshot of the authentication state.
//
// Status == StatusSignedIn holds exactly when User != nil and AccessToken != "".
type State struct {
	Status       Status
	User         *users.Profile
	AccessToken  string
	Error        string // last user-facing error, kept until ClearError
	Warning      string // degraded but working, e.g. the session could not be persisted
	Provider     provider.ID
	Capabilities provider.Capabilities
}

func (s State) IsAuthenticated() bool {
	return s.Status == StatusSignedIn
}

func (s State) IsLoading() bool {
	switch s.Status {
	case StatusInitializing, StatusSigningIn, StatusSigningOut:
		return true
	}
	return false
}

func (s State) IsInitialized() bool {
	return s.Status != StatusUninitialized && s.Status != StatusInitializing
}
