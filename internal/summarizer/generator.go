package summarizer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strings"
	"time"
)

var (
	ErrTimeout         = errors.New("summarizer timed out")
	ErrMalformedOutput = errors.New("summarizer output missing required sections")
	ErrEmptyInput      = errors.New("summarizer input is empty")
)

// Generator is the external generative capability: prompt in, text out.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// CommandGenerator runs a local model CLI (e.g. `ollama run llama3.1:1b`),
// writing the prompt to stdin and reading the answer from stdout.
type CommandGenerator struct {
	Args []string
}

func NewCommandGenerator(args []string) *CommandGenerator {
	return &CommandGenerator{Args: args}
}

func (g *CommandGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if len(g.Args) == 0 {
		return "", fmt.Errorf("summarizer command not configured")
	}
	cmd := exec.CommandContext(ctx, g.Args[0], g.Args[1:]...)
	cmd.Stdin = strings.NewReader(prompt)
	// bound the wait for inherited pipes after the process is killed
	cmd.WaitDelay = time.Second
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", ErrTimeout
		}
		return "", ctx.Err()
	}
	if err != nil {
		return "", fmt.Errorf("summarizer command: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return string(out), nil
}

// GatewayGenerator posts the prompt to an OpenAI-compatible chat endpoint.
// One attempt per call; the caller's deadline bounds it.
type GatewayGenerator struct {
	URL    string
	APIKey string
	Model  string
	Client *http.Client
}

func NewGatewayGenerator(url, apiKey, model string) *GatewayGenerator {
	return &GatewayGenerator{URL: url, APIKey: apiKey, Model: model, Client: &http.Client{}}
}

func (g *GatewayGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if g.URL == "" || g.APIKey == "" {
		return "", fmt.Errorf("llm gateway not configured")
	}
	reqBody := map[string]any{
		"model": g.Model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature": 0.0,
	}
	data, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal gateway request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.URL, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+g.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.Client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", ErrTimeout
		}
		return "", fmt.Errorf("llm request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read gateway response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("llm gateway error (%d): %s", resp.StatusCode, string(body))
	}
	content := contentFromChoices(body)
	if content == "" {
		return "", fmt.Errorf("no content in llm response")
	}
	return content, nil
}

// contentFromChoices reads openai-style choices[0].message.content
func contentFromChoices(body []byte) string {
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return ""
	}
	choices, ok := obj["choices"].([]any)
	if !ok || len(choices) == 0 {
		return ""
	}
	c0, _ := choices[0].(map[string]any)
	if c0 == nil {
		return ""
	}
	msg, _ := c0["message"].(map[string]any)
	if msg == nil {
		return ""
	}
	content, _ := msg["content"].(string)
	return stripFences(content)
}

// stripFences removes markdown code fences models like to wrap output in.
func stripFences(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	for _, r := range []string{"```text", "```markdown", "```"} {
		s = strings.ReplaceAll(s, r, "")
	}
	return strings.TrimSpace(s)
}
