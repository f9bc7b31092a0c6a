package authstate

import (
	"fmt"

	"github.com/jrsteele09/go-auth-client/provider"
)

// action is the closed set of state transitions. Only this package can add
// variants, and reduce panics on any it does not handle.
type action interface {
	isAction()
}

type initStarted struct{}

type initResolved struct {
	session *provider.Session // nil: nobody signed in
}

type signInStarted struct{}

type signInSucceeded struct {
	session *provider.Session
	warning string
}

type signInFailed struct {
	message string // empty: nothing to show, e.g. the user cancelled
	fatal   bool   // configuration problem, park in StatusError
}

type signOutStarted struct{}

type signedOut struct{}

type tokenRefreshed struct {
	session *provider.Session
	warning string
}

type refreshFailed struct{}

type clearError struct{}

type storageWarning struct {
	message string
}

func (initStarted) isAction() {}
func (initResolved) isAction() {}
func (signInStarted) isAction() {}
func (signInSucceeded) isAction() {}
func (signInFailed) isAction() {}
func (signOutStarted) isAction() {}
func (signedOut) isAction() {}
func (tokenRefreshed) isAction() {}
func (refreshFailed) isAction() {}
func (clearError) isAction() {}
func (storageWarning) isAction() {}

func reduce(s State, a action) State {
	switch a := a.(type) {
	case initStarted:
		s = withoutSession(s)
		s.Status = StatusInitializing
	case initResolved:
		if a.session != nil {
			s = withSession(s, a.session)
		} else {
			s = withoutSession(s)
		}
	case signInStarted:
		s = withoutSession(s)
		s.Status = StatusSigningIn
	case signInSucceeded:
		s = withSession(s, a.session)
		s.Error = ""
		s.Warning = a.warning
	case signInFailed:
		s = withoutSession(s)
		if a.fatal {
			s.Status = StatusError
		}
		if a.message != "" {
			s.Error = a.message
		}
	case signOutStarted:
		// the cache is already cleared, so the session goes with it
		s = withoutSession(s)
		s.Status = StatusSigningOut
	case signedOut:
		s = withoutSession(s)
		s.Warning = ""
	case tokenRefreshed:
		s.AccessToken = a.session.AccessToken
		s.Warning = a.warning
	case refreshFailed:
		s = withoutSession(s)
	case clearError:
		s.Error = ""
		if s.Status == StatusError {
			s.Status = StatusSignedOut
		}
	case storageWarning:
		s.Warning = a.message
	default:
		panic(fmt.Sprintf("authstate: unhandled action %T", a))
	}
	return s
}

func withSession(s State, session *provider.Session) State {
	user := session.User.Clone()
	s.Status = StatusSignedIn
	s.User = &user
	s.AccessToken = session.AccessToken
	return s
}

func withoutSession(s State) State {
	s.Status = StatusSignedOut
	s.User = nil
	s.AccessToken = ""
	return s
}
