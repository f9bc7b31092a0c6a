package broker

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"runtime"
	"time"

	autherrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/provider"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var _ provider.Broker = (*Loopback)(nil)

const doneHTML = `<!doctype html><html><body><p>Sign-in complete. You can close this window.</p></body></html>`

// Opener shows the authorization URL to the user.
type Opener func(authURL string) error

// PrintOpener writes the URL to w for the user to open by hand.
func PrintOpener(w io.Writer) Opener {
	return func(authURL string) error {
		_, err := fmt.Fprintf(w, "Open this URL to sign in:\n\n  %s\n\n", authURL)
		return err
	}
}

// BrowserOpener launches the platform's default browser.
func BrowserOpener() Opener {
	return func(authURL string) error {
		var cmd *exec.Cmd
		switch runtime.GOOS {
		case "darwin":
			cmd = exec.Command("open", authURL)
		case "windows":
			cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", authURL)
		default:
			cmd = exec.Command("xdg-open", authURL)
		}
		return cmd.Start()
	}
}

// Loopback receives the authorization redirect on a short-lived local HTTP
// listener, the way native apps complete an authorization-code flow.
type Loopback struct {
	addr    string
	path    string
	open    Opener
	timeout time.Duration
	logger  zerolog.Logger
}

type Option func(*Loopback)

func WithOpener(open Opener) Option {
	return func(l *Loopback) {
		l.open = open
	}
}

// WithTimeout bounds how long Authorize waits for the redirect.
func WithTimeout(d time.Duration) Option {
	return func(l *Loopback) {
		l.timeout = d
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(l *Loopback) {
		l.logger = logger
	}
}

// NewLoopback listens on the host and port of redirectURL, which must be an
// http URL on a loopback address with an explicit port.
func NewLoopback(redirectURL string, opts ...Option) (*Loopback, error) {
	u, err := url.Parse(redirectURL)
	if err != nil {
		return nil, errors.Wrap(err, "[broker.NewLoopback] parse redirect URL")
	}
	if u.Scheme != "http" {
		return nil, errors.Errorf("[broker.NewLoopback] redirect URL must use http, got %q", u.Scheme)
	}
	host, port := u.Hostname(), u.Port()
	if port == "" {
		return nil, errors.Errorf("[broker.NewLoopback] redirect URL %q has no port", redirectURL)
	}
	if !isLoopback(host) {
		return nil, errors.Errorf("[broker.NewLoopback] redirect host %q is not a loopback address", host)
	}
	path := u.Path
	if path == "" {
		path = "/"
	}

	l := &Loopback{
		addr:    net.JoinHostPort(host, port),
		path:    path,
		open:    PrintOpener(os.Stderr),
		timeout: 5 * time.Minute,
		logger:  log.Logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

type callbackResult struct {
	code string
	err  error
}

// Authorize opens authURL and waits for a redirect carrying state.
// Redirects with another state are answered with 400 and ignored.
func (l *Loopback) Authorize(ctx context.Context, authURL, state string) (string, error) {
	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return "", errors.Wrapf(err, "[Loopback.Authorize] listen on %s", l.addr)
	}

	results := make(chan callbackResult, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+l.path, l.callbackHandler(state, results))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			l.logger.Warn().Err(err).Msg("loopback listener stopped")
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := l.open(authURL); err != nil {
		return "", errors.Wrap(err, "[Loopback.Authorize] open authorization URL")
	}

	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	select {
	case res := <-results:
		return res.code, res.err
	case <-ctx.Done():
		return "", autherrors.Wrapf(autherrors.ErrInteractiveCancelled, "[Loopback.Authorize] %v", ctx.Err())
	}
}

func (l *Loopback) callbackHandler(state string, results chan<- callbackResult) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			l.logger.Warn().Msg("loopback redirect with unexpected state ignored")
			http.Error(w, "unexpected state", http.StatusBadRequest)
			return
		}

		var res callbackResult
		switch errCode := q.Get("error"); {
		case errCode == "access_denied":
			res.err = autherrors.Wrapf(autherrors.ErrInteractiveCancelled, "[Loopback] %s", q.Get("error_description"))
		case errCode != "":
			res.err = autherrors.Wrapf(autherrors.ErrInvalidCredentials, "[Loopback] %s: %s", errCode, q.Get("error_description"))
		case q.Get("code") == "":
			res.err = autherrors.Wrapf(autherrors.ErrInvalidCredentials, "[Loopback] redirect carried no code")
		default:
			res.code = q.Get("code")
		}

		select {
		case results <- res:
		default:
			// a result was already delivered
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, doneHTML)
	}
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
