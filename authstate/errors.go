package authstate

import "errors"

var (
	ErrNotInitialized   = errors.New("auth state not initialized")
	ErrSignInInProgress = errors.New("sign-in already in progress")
	ErrAlreadySignedIn  = errors.New("already signed in")
	ErrSigningOut       = errors.New("sign-out in progress")
	ErrSignInDiscarded  = errors.New("sign-in result discarded after sign-out")
	ErrRefreshDiscarded = errors.New("refresh result discarded after sign-out")
)
