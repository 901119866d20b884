package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/NordCoder/Crabiner/internal/client/agent"
	"github.com/NordCoder/Crabiner/internal/domain/identity"
	"golang.org/x/term"
)

type cli struct {
	agent  *agent.Agent
	server string
	out    io.Writer
	http   *http.Client
}

type sessionPayload struct {
	AccessToken  string            `json:"accessToken"`
	RefreshToken string            `json:"refreshToken"`
	User         *identity.Summary `json:"user"`
}

func (c *cli) client() *http.Client {
	if c.http != nil {
		return c.http
	}
	return http.DefaultClient
}

func (c *cli) login(ctx context.Context, subject, key string) error {
	body, _ := json.Marshal(map[string]any{"subjectId": subject})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.server, "/")+"/internal/sessions", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Internal-Key", key)

	resp, err := c.client().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return fmt.Errorf("login failed: %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	var p sessionPayload
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return fmt.Errorf("decode session: %w", err)
	}
	if err := c.agent.SetSession(ctx, p.AccessToken, p.RefreshToken, p.User); err != nil {
		return err
	}
	return printJSON(c.out, p.User)
}

func (c *cli) status(ctx context.Context) error {
	ok, err := c.agent.Bootstrap(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return printJSON(c.out, map[string]any{"authenticated": false})
	}
	return printJSON(c.out, map[string]any{"authenticated": true, "user": c.agent.Identity()})
}

func (c *cli) get(ctx context.Context, path string) error {
	// Access tokens only live in memory, so every run starts from the stored secret.
	if _, err := c.agent.Bootstrap(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(c.server, "/")+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.agent.Do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	fmt.Fprintln(c.out, resp.Status)
	_, err = io.Copy(c.out, resp.Body)
	return err
}

// resolveInternalKey prompts without echo when no key was given and stdin is a terminal.
func resolveInternalKey(key string) (string, error) {
	if key != "" {
		return key, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("no internal key given")
	}
	fmt.Fprint(os.Stderr, "internal key: ")
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func ensureDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o700)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
