package auth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"multisigcheck/internal/utils"
)

// SessionKey is the local storage key holding the session token.
const SessionKey = "multisig-session"

// TokenStore persists the session token on the device.
type TokenStore interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Remove(key string) error
}

// LoopbackProvider signs in through the backend's OAuth endpoints, receiving
// the session token on a short-lived listener bound to 127.0.0.1.
type LoopbackProvider struct {
	backendURL string
	store      TokenStore
	open       func(string) error
	now        func() time.Time
	logger     *zap.Logger

	mu        sync.Mutex
	listeners map[int]func(*Session)
	nextID    int
}

// NewLoopbackProvider returns a provider for the backend at backendURL. open
// is called with the URL the user must visit to continue signing in.
func NewLoopbackProvider(backendURL string, store TokenStore, open func(string) error, logger *zap.Logger) *LoopbackProvider {
	return &LoopbackProvider{
		backendURL: strings.TrimRight(backendURL, "/"),
		store:      store,
		open:       open,
		now:        time.Now,
		logger:     utils.OrNop(logger),
		listeners:  map[int]func(*Session){},
	}
}

func (p *LoopbackProvider) GetSession(context.Context) (*Session, error) {
	tok, ok := p.store.Get(SessionKey)
	if !ok || tok == "" {
		return nil, nil
	}
	s, err := SessionFromToken(tok)
	if err != nil {
		p.logger.Warn("discarding unreadable session token", zap.Error(err))
		_ = p.store.Remove(SessionKey)
		return nil, nil
	}
	if s.Expired(p.now()) {
		p.logger.Info("session expired", zap.String("user_id", s.UserID))
		_ = p.store.Remove(SessionKey)
		return nil, nil
	}
	return s, nil
}

// Token returns the current session token, or "".
func (p *LoopbackProvider) Token() string {
	s, _ := p.GetSession(context.Background())
	if s == nil {
		return ""
	}
	return s.Token
}

type callbackResult struct {
	token string
	err   error
}

func (p *LoopbackProvider) SignInWithOAuth(ctx context.Context, provider OAuthProvider) error {
	if p.backendURL == "" {
		return ErrNotConfigured
	}
	if _, err := ParseProvider(string(provider)); err != nil {
		return err
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("listen for oauth callback: %w", err)
	}
	redirect := "http://" + ln.Addr().String() + "/callback"

	results := make(chan callbackResult, 1)
	srv := &http.Server{
		ReadHeaderTimeout: 10 * time.Second,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/callback" {
				http.NotFound(w, r)
				return
			}
			q := r.URL.Query()
			res := callbackResult{token: q.Get("token")}
			if reason := q.Get("error"); reason != "" {
				res.err = fmt.Errorf("sign-in failed: %s", reason)
			} else if res.token == "" {
				res.err = errors.New("sign-in failed: no token returned")
			}
			if res.err != nil {
				http.Error(w, res.err.Error(), http.StatusBadRequest)
			} else {
				_, _ = w.Write([]byte("Signed in. You can close this window.\n"))
			}
			select {
			case results <- res:
			default:
			}
		}),
	}
	go func() { _ = srv.Serve(ln) }()
	defer srv.Close()

	start := p.backendURL + "/auth/" + string(provider) + "/start?redirect_uri=" + url.QueryEscape(redirect)
	if err := p.open(start); err != nil {
		return fmt.Errorf("open sign-in url: %w", err)
	}

	var res callbackResult
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res = <-results:
	}
	if res.err != nil {
		return res.err
	}

	session, err := SessionFromToken(res.token)
	if err != nil {
		return err
	}
	if err := p.store.Set(SessionKey, res.token); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	p.logger.Info("signed in", zap.String("user_id", session.UserID), zap.String("provider", string(provider)))
	p.notify(session)
	return nil
}

func (p *LoopbackProvider) SignOut(context.Context) error {
	if err := p.store.Remove(SessionKey); err != nil {
		return fmt.Errorf("remove session: %w", err)
	}
	p.notify(nil)
	return nil
}

func (p *LoopbackProvider) OnSessionChange(fn func(*Session)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

func (p *LoopbackProvider) notify(s *Session) {
	p.mu.Lock()
	fns := make([]func(*Session), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.mu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}
