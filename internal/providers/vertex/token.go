package vertex

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"
)

var commandContext = exec.CommandContext

const tokenLifetime = 45 * time.Minute

// TokenSource supplies OAuth bearer tokens for the Vertex API.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

type staticToken string

func (s staticToken) Token(context.Context) (string, error) {
	return string(s), nil
}

// commandToken runs a command such as "gcloud auth print-access-token" and
// caches its output for tokenLifetime.
type commandToken struct {
	argv []string

	mu      sync.Mutex
	token   string
	expires time.Time
	now     func() time.Time
}

func newCommandToken(command string) *commandToken {
	return &commandToken{argv: strings.Fields(command), now: time.Now}
}

func (c *commandToken) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && c.now().Before(c.expires) {
		return c.token, nil
	}
	if len(c.argv) == 0 {
		return "", errors.New("token command is empty")
	}
	callCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	cmd := commandContext(callCtx, c.argv[0], c.argv[1:]...) //nolint:gosec
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("token command %s: %w: %s", c.argv[0], err, strings.TrimSpace(stderr.String()))
	}
	token := strings.TrimSpace(stdout.String())
	if token == "" {
		return "", fmt.Errorf("token command %s printed no token", c.argv[0])
	}
	c.token = token
	c.expires = c.now().Add(tokenLifetime)
	return token, nil
}
