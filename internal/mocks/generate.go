// Package mocks holds gomock doubles for the auth client's interfaces.
//
// To regenerate after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	p := mocks.NewMockProvider(ctrl)
//	p.EXPECT().SignIn(gomock.Any(), gomock.Any()).Return(session, nil)
package mocks

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=provider_mock.go github.com/jrsteele09/go-auth-client/provider Provider
