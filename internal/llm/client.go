// Package llm is the hybrid text-generation dispatcher. It prefers a
// remote asynchronous job endpoint and falls back to a local
// Ollama-compatible server, returning one opaque string either way.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/maum-on/haruon-hub/internal/breaker"
)

// Options tune a single generation call.
type Options struct {
	Model       string  // local backend model identifier
	Temperature float64 // sampling temperature, both backends
	NumPredict  int     // generation length cap
	Format      string  // "json" requests JSON mode on the local backend
}

// ObserveRequest, when set, records one backend attempt for metrics.
var ObserveRequest func(backend, outcome string)

const (
	defaultLocalURL  = "http://localhost:11434"
	defaultModel     = "qwen2.5:7b"
	remotePollEvery  = 2 * time.Second
	localCallTimeout = 5 * time.Minute
)

// Client dispatches Generate over the configured backends in
// preference order. Instances are shared process-wide; all mutable
// state is request-scoped.
type Client struct {
	remote *remoteBackend
	local  *localBackend
}

type remoteBackend struct {
	baseURL string
	apiKey  string
	http    *http.Client
	brk     *breaker.CircuitBreaker
}

type localBackend struct {
	baseURL string
	http    *http.Client
}

// NewFromEnv builds the dispatcher from REMOTE_LLM_URL /
// REMOTE_LLM_API_KEY / LOCAL_LLM_URL. A placeholder remote token
// disables the remote backend entirely.
func NewFromEnv() *Client {
	c := &Client{
		local: &localBackend{
			baseURL: strings.TrimRight(envOr("LOCAL_LLM_URL", defaultLocalURL), "/"),
			http:    &http.Client{Timeout: localCallTimeout},
		},
	}
	url := strings.TrimRight(os.Getenv("REMOTE_LLM_URL"), "/")
	key := os.Getenv("REMOTE_LLM_API_KEY")
	if url != "" && key != "" && !isPlaceholder(key) {
		c.remote = &remoteBackend{
			baseURL: url,
			apiKey:  key,
			// Per-request deadlines come from the caller context; the
			// client timeout only bounds a single poll round trip.
			http: &http.Client{Timeout: 30 * time.Second},
			brk:  breaker.Get("remote_llm"),
		}
	}
	return c
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func isPlaceholder(key string) bool {
	k := strings.ToLower(key)
	for _, p := range []string{"your_", "changeme", "placeholder", "xxxx"} {
		if strings.Contains(k, p) {
			return true
		}
	}
	return false
}

// Generate returns the first non-empty text produced by the backends in
// preference order, or ("", false) when every backend fails. It never
// panics and never returns a transport error to the caller.
func (c *Client) Generate(ctx context.Context, prompt string, opts Options) (string, bool) {
	if c.remote != nil {
		if c.remote.brk.Allow() {
			text, err := c.remote.generate(ctx, prompt, opts)
			if err == nil && text != "" {
				c.remote.brk.ReportSuccess()
				observe("remote", "ok")
				return text, true
			}
			c.remote.brk.ReportFailure()
			observe("remote", "error")
			log.Printf("llm: remote backend failed, falling back: %v", err)
		} else {
			observe("remote", "breaker_open")
		}
	}
	// The caller deadline bounds only the remote polling phase; the
	// local fallback runs on its own budget so an expired remote
	// deadline never starves it.
	localCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), localCallTimeout)
	defer cancel()
	text, err := c.local.generate(localCtx, prompt, opts)
	if err == nil && text != "" {
		observe("local", "ok")
		return text, true
	}
	observe("local", "error")
	log.Printf("llm: local backend failed: %v", err)
	return "", false
}

func observe(backend, outcome string) {
	if ObserveRequest != nil {
		ObserveRequest(backend, outcome)
	}
}

// --- remote async job backend ---

type remoteJob struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  string          `json:"error"`
}

// generate submits the prompt as an asynchronous job and polls its
// status URL until COMPLETED, a terminal failure, or the caller's
// deadline.
func (r *remoteBackend) generate(ctx context.Context, prompt string, opts Options) (string, error) {
	payload := map[string]any{
		"input": map[string]any{
			"prompt":      prompt,
			"temperature": opts.Temperature,
			"max_tokens":  opts.NumPredict,
		},
	}
	var job remoteJob
	if err := r.postJSON(ctx, r.baseURL+"/run", payload, &job); err != nil {
		return "", fmt.Errorf("submit: %w", err)
	}
	if job.ID == "" {
		return "", fmt.Errorf("submit: no job id in response")
	}

	ticker := time.NewTicker(remotePollEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("poll: %w", ctx.Err())
		case <-ticker.C:
		}
		var st remoteJob
		if err := r.getJSON(ctx, r.baseURL+"/status/"+job.ID, &st); err != nil {
			return "", fmt.Errorf("poll: %w", err)
		}
		switch strings.ToUpper(st.Status) {
		case "COMPLETED":
			text := ExtractText(st.Output)
			if text == "" {
				return "", fmt.Errorf("completed job had no extractable text")
			}
			return text, nil
		case "FAILED", "CANCELLED":
			return "", fmt.Errorf("job %s: %s", strings.ToLower(st.Status), st.Error)
		}
	}
}

func (r *remoteBackend) postJSON(ctx context.Context, url string, body any, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	return doJSON(r.http, req, out)
}

func (r *remoteBackend) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	return doJSON(r.http, req, out)
}

func doJSON(client *http.Client, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// --- local generation backend ---

type localRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Format  string         `json:"format,omitempty"`
	Options map[string]any `json:"options,omitempty"`
}

type localResponse struct {
	Response string `json:"response"`
}

func (l *localBackend) generate(ctx context.Context, prompt string, opts Options) (string, error) {
	model := opts.Model
	if model == "" {
		model = defaultModel
	}
	body := localRequest{
		Model:  model,
		Prompt: prompt,
		Stream: false,
		Options: map[string]any{
			"temperature": opts.Temperature,
		},
	}
	if opts.NumPredict > 0 {
		body.Options["num_predict"] = opts.NumPredict
	}
	if opts.Format == "json" {
		body.Format = "json"
	}
	b, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/api/generate", bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	var out localResponse
	if err := doJSON(l.http, req, &out); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Response), nil
}
