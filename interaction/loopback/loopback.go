// Package loopback implements an interaction surface for native and CLI
// applications: the authorization URL is opened in the system browser and
// the redirect is received by a short-lived HTTP listener on the loopback
// interface (RFC 8252 section 7.3).
package loopback

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/pkg/browser"

	"github.com/giantswarm/mcp-appauth/interaction"
	"github.com/giantswarm/mcp-appauth/internal/util"
	"github.com/giantswarm/mcp-appauth/request"
	"github.com/giantswarm/mcp-appauth/security"
)

const (
	defaultShutdownTimeout   = time.Second
	defaultReadHeaderTimeout = 10 * time.Second
)

// ErrInvalidRedirectURI is returned by Launch when the request's redirect URI
// cannot be served by a loopback listener.
var ErrInvalidRedirectURI = errors.New("redirect URI is not a loopback http URI")

// Option configures a Surface.
type Option func(*Surface)

// WithBrowserOpen overrides the default "open browser" functionality. If not
// specified, github.com/pkg/browser is used.
func WithBrowserOpen(openURL func(url string) error) Option {
	return func(s *Surface) {
		s.openURL = openURL
	}
}

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Surface) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithListenAddress binds the listener to addr instead of the redirect URI's
// host and port. Useful when the redirect URI names a port the provider has
// registered but the listener must bind elsewhere (for example behind port
// forwarding).
func WithListenAddress(addr string) Option {
	return func(s *Surface) {
		s.listenAddr = addr
	}
}

// Surface is an interaction.Surface backed by the system browser and a
// loopback redirect listener. Each Launch starts its own listener, which is
// shut down once the outcome is delivered or the launch context ends.
type Surface struct {
	logger     *slog.Logger
	openURL    func(string) error
	listenAddr string
}

var _ interaction.Surface = (*Surface)(nil)

// New creates a loopback Surface.
func New(opts ...Option) *Surface {
	s := &Surface{
		logger:  slog.Default(),
		openURL: browser.OpenURL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Launch starts the redirect listener and opens the authorization URL.
//
// The redirect URI must be an http URI on a loopback host with an explicit
// port. If ctx ends before the browser returns, the outcome carries ctx.Err().
func (s *Surface) Launch(ctx context.Context, req *request.AuthorizationRequest, deliver interaction.DeliverFunc) error {
	redirect, err := parseLoopbackRedirect(req.RedirectURI)
	if err != nil {
		return err
	}

	addr := redirect.Host
	if s.listenAddr != "" {
		addr = s.listenAddr
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("could not open callback listener: %w", err)
	}

	cb := &callback{
		state:   req.State,
		deliver: deliver,
		done:    make(chan struct{}),
		logger:  s.logger,
	}
	shutdown := s.serve(listener, redirect.Path, cb)

	go func() {
		select {
		case <-cb.done:
		case <-ctx.Done():
			cb.finish(interaction.Outcome{Err: fmt.Errorf("timed out waiting for authorization callback: %w", ctx.Err())})
		}
		shutdown()
	}()

	s.logger.Debug("Opening authorization URL in browser",
		"listen_addr", listener.Addr().String(),
		"callback_path", redirect.Path)

	if err := s.openURL(req.URL()); err != nil {
		cb.abandon()
		return fmt.Errorf("could not open browser: %w", err)
	}

	return nil
}

func (s *Surface) serve(listener net.Listener, path string, cb *callback) func() {
	mux := http.NewServeMux()
	mux.Handle(path, cb)

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
	}
	go func() { _ = srv.Serve(listener) }()

	var once sync.Once
	return func() {
		once.Do(func() {
			// Give the browser time to receive the final page.
			shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		})
	}
}

func parseLoopbackRedirect(redirectURI string) (*url.URL, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRedirectURI, err)
	}
	if u.Scheme != "http" {
		return nil, fmt.Errorf("%w: scheme must be http, got %q", ErrInvalidRedirectURI, u.Scheme)
	}
	if !util.IsLoopbackHostname(u.Hostname()) {
		return nil, fmt.Errorf("%w: host %q is not a loopback address", ErrInvalidRedirectURI, u.Hostname())
	}
	if u.Port() == "" {
		return nil, fmt.Errorf("%w: an explicit port is required", ErrInvalidRedirectURI)
	}
	if u.Path == "" {
		u.Path = "/"
	}
	return u, nil
}

// callback handles the redirect for a single launch and delivers at most one
// outcome.
type callback struct {
	state   string
	deliver interaction.DeliverFunc
	logger  *slog.Logger

	once sync.Once
	done chan struct{}
}

func (c *callback) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	security.SetCallbackHeaders(w)

	if r.Method != http.MethodGet {
		http.Error(w, "wanted GET", http.StatusMethodNotAllowed)
		return
	}

	params := r.URL.Query()

	// A request without our state is not the provider's redirect (CSRF or a
	// stale tab); keep waiting for the real one.
	if params.Get(interaction.ParamState) != c.state {
		c.logger.Warn("Ignoring callback with missing or invalid state",
			"state_prefix", util.SafeTruncate(params.Get(interaction.ParamState), 8))
		http.Error(w, "missing or invalid state parameter", http.StatusForbidden)
		return
	}

	outcome := interaction.OutcomeFromValues(params)
	if !c.finish(outcome) {
		http.Error(w, "authorization already completed", http.StatusConflict)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if outcome.Err != nil {
		w.WriteHeader(http.StatusBadRequest)
		writePage(w, "Authorization failed", outcome.Err.Error())
		return
	}
	writePage(w, "Authorization complete", "You may now close this window.")
}

// finish delivers outcome if nothing was delivered yet. It reports whether
// this call delivered.
func (c *callback) finish(outcome interaction.Outcome) bool {
	delivered := false
	c.once.Do(func() {
		delivered = true
		close(c.done)
		c.deliver(outcome)
	})
	return delivered
}

// abandon stops the listener without delivering, for launches that failed.
func (c *callback) abandon() {
	c.once.Do(func() {
		close(c.done)
	})
}

func writePage(w http.ResponseWriter, title, message string) {
	_, _ = fmt.Fprintf(w, "<!DOCTYPE html><html><head><title>%s</title></head><body><h1>%s</h1><p>%s</p></body></html>",
		html.EscapeString(title), html.EscapeString(title), html.EscapeString(message))
}
