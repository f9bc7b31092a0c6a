package server

import (
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/jrsteele09/go-auth-client/token"
	"github.com/jrsteele09/go-auth-client/users"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Server is the demo resource API the client authenticates against. It
// verifies credentials for the direct provider's remote checker and serves a
// small bearer-protected item collection.
type Server struct {
	env    string // "DEV" logs routes and requests
	mux    *http.ServeMux
	routes []string
	scheme string
	minter *token.Minter
	table  *users.CredentialTable
	items  *itemStore
	logger zerolog.Logger

	revoked     map[string]struct{} // token IDs
	revokedLock sync.RWMutex
}

type Option func(*Server)

func WithEnv(env string) Option {
	return func(s *Server) {
		s.env = env
	}
}

// WithScheme sets the Authorization scheme the API accepts. Matching is
// case-insensitive.
func WithScheme(scheme string) Option {
	return func(s *Server) {
		s.scheme = scheme
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New builds the API. minter must share its signing key with whatever issues
// the tokens clients will present.
func New(minter *token.Minter, table *users.CredentialTable, opts ...Option) *Server {
	s := &Server{
		mux:     http.NewServeMux(),
		scheme:  "Bearer",
		minter:  minter,
		table:   table,
		items:   newItemStore(),
		logger:  log.Logger,
		revoked: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.initRoutes()
	s.logRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

// RevokeToken makes the API reject raw from now on, which is how tests and
// operators force a client through the 401 path.
func (s *Server) RevokeToken(raw string) error {
	claims, err := token.ParseUnverified(raw)
	if err != nil {
		return fmt.Errorf("[Server.RevokeToken] %w", err)
	}
	if claims.ID == "" {
		return fmt.Errorf("[Server.RevokeToken] token has no jti")
	}
	s.revokedLock.Lock()
	defer s.revokedLock.Unlock()
	s.revoked[claims.ID] = struct{}{}
	return nil
}

func (s *Server) isRevoked(tokenID string) bool {
	s.revokedLock.RLock()
	defer s.revokedLock.RUnlock()
	_, ok := s.revoked[tokenID]
	return ok
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			s.logRoute(parts[0], parts[1])
		} else {
			s.logRoute("", parts[0])
		}
	}
}

func (s *Server) logRoute(method, path string) {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	color, ok := methodColors[method]
	if !ok {
		color = Gray
	}
	s.logger.Info().Msgf("[%-19s] %s", color+paddedMethod+ResetColor, path)
}
