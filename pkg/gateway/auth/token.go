// Package auth provides the bearer-token source for outbound calls to the
// remote sandbox provider. The token lives in a file that the platform
// rotates; the service re-reads it periodically.
package auth

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/go-logr/logr"

	apperrors "github.com/agentgate-dev/agentgate/pkg/gateway/errors"
)

const (
	// DefaultTokenPath is where the platform mounts the rotated token.
	DefaultTokenPath = "/var/run/secrets/tokens/agentgate-token"

	// DefaultRefreshPeriod is how often the token file is re-read.
	DefaultRefreshPeriod = 60 * time.Second
)

// TokenService serves the current bearer token.
type TokenService struct {
	tokenPath     string
	refreshPeriod time.Duration
	log           logr.Logger

	mu     sync.RWMutex
	token  string
	stopCh chan struct{}
}

// NewTokenService creates a TokenService reading from tokenPath.
func NewTokenService(tokenPath string, log logr.Logger) *TokenService {
	if tokenPath == "" {
		tokenPath = DefaultTokenPath
	}
	return &TokenService{
		tokenPath:     tokenPath,
		refreshPeriod: DefaultRefreshPeriod,
		log:           log.WithName("token-service"),
		stopCh:        make(chan struct{}),
	}
}

// Start loads the token and begins the refresh cycle. A missing token file is
// tolerated (local development); any other read failure is fatal.
func (t *TokenService) Start(ctx context.Context) error {
	if err := t.refresh(); err != nil {
		return apperrors.New(apperrors.ErrCodeAuthFailed, "failed to load initial token", err)
	}

	ticker := time.NewTicker(t.refreshPeriod)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := t.refresh(); err != nil {
					t.log.Error(err, "token refresh failed")
				}
			case <-ctx.Done():
				return
			case <-t.stopCh:
				return
			}
		}
	}()

	return nil
}

// Stop ends the refresh cycle.
func (t *TokenService) Stop() {
	close(t.stopCh)
}

func (t *TokenService) refresh() error {
	data, err := os.ReadFile(t.tokenPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	t.mu.Lock()
	t.token = string(data)
	t.mu.Unlock()
	return nil
}

// Token returns the current bearer token, or "" when none is loaded.
func (t *TokenService) Token() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.token
}
