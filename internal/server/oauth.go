// package server hosts the loopback HTTP endpoint used by the OAuth2
// authorization-code flow. It exists only for the duration of one auth run.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/dsoriano/cratesync/internal/shared"
)

// callbackResult carries the outcome of the single expected callback.
type callbackResult struct {
	token *oauth2.Token
	err   error
}

// CallbackHandler serves the OAuth redirect endpoint. It validates the state
// parameter, exchanges the authorization code, and reports the result exactly
// once; repeat hits are rejected.
type CallbackHandler struct {
	config  *oauth2.Config
	state   string
	results chan callbackResult

	mu   sync.Mutex
	done bool
}

func NewCallbackHandler(config *oauth2.Config, state string) *CallbackHandler {
	return &CallbackHandler{
		config:  config,
		state:   state,
		results: make(chan callbackResult, 1),
	}
}

func (h *CallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.done {
		h.mu.Unlock()
		http.Error(w, "callback already processed", http.StatusBadRequest)
		return
	}
	h.done = true
	h.mu.Unlock()

	query := r.URL.Query()
	if query.Get("state") != h.state {
		h.finish(callbackResult{err: fmt.Errorf("%w: state mismatch", shared.ErrAuthFailed)})
		http.Error(w, "state mismatch", http.StatusBadRequest)
		return
	}

	code := query.Get("code")
	if code == "" {
		reason := query.Get("error")
		if desc := query.Get("error_description"); desc != "" {
			reason += ": " + desc
		}
		h.finish(callbackResult{err: fmt.Errorf("%w: %s", shared.ErrAuthFailed, reason)})
		http.Error(w, "authorization denied", http.StatusBadRequest)
		return
	}

	token, err := h.config.Exchange(r.Context(), code)
	if err != nil {
		h.finish(callbackResult{err: fmt.Errorf("%w: token exchange: %v", shared.ErrAuthFailed, err)})
		http.Error(w, "token exchange failed", http.StatusInternalServerError)
		return
	}

	h.finish(callbackResult{token: token})
	w.Header().Set("Content-Type", "text/html")
	fmt.Fprint(w, successPage)
}

func (h *CallbackHandler) finish(result callbackResult) {
	h.results <- result
	close(h.results)
}

// Await starts a loopback server on the redirect URI's host:port and blocks
// until the provider redirects back, the timeout elapses, or ctx is canceled.
func Await(ctx context.Context, config *oauth2.Config, state string, timeout time.Duration) (*oauth2.Token, error) {
	redirect, err := url.Parse(config.RedirectURL)
	if err != nil {
		return nil, fmt.Errorf("%w: bad redirect_uri %q", shared.ErrInvalidConfig, config.RedirectURL)
	}

	handler := NewCallbackHandler(config, state)
	mux := http.NewServeMux()
	mux.Handle(redirect.Path, handler)

	listener, err := net.Listen("tcp", redirect.Host)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", redirect.Host, err)
	}

	srv := &http.Server{Handler: mux}
	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	select {
	case result := <-handler.results:
		return result.token, result.err
	case err := <-serveErr:
		return nil, fmt.Errorf("callback server failed: %w", err)
	case <-time.After(timeout):
		return nil, fmt.Errorf("%w: timed out waiting for authorization", shared.ErrAuthFailed)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

const successPage = `<!DOCTYPE html>
<html>
<head><title>Authorized</title></head>
<body style="font-family: sans-serif; text-align: center; padding-top: 4rem;">
<h1>Authorization successful</h1>
<p>You can close this window and return to the terminal.</p>
</body>
</html>
`
