package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/ndmitry/grabit/internal/config"
)

// Turn is one message in a conversation, oldest first.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Client talks to OpenAI-compatible completion endpoints. Endpoints
// are tried in order until one answers.
type Client struct {
	urls   []string
	apiKey string
	model  string
	http   *http.Client
}

func NewClient() *Client {
	return &Client{
		urls:   config.ChatAPIURLs,
		apiKey: config.ChatAPIKey,
		model:  config.ChatModel,
		http:   &http.Client{Timeout: config.ChatTimeout},
	}
}

func (c *Client) Enabled() bool {
	return len(c.urls) > 0
}

type completionRequest struct {
	Model    string `json:"model"`
	Messages []Turn `json:"messages"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends the conversation and returns the assistant's reply.
// The system prompt is prepended here so callers only manage the
// user/assistant history.
func (c *Client) Complete(ctx context.Context, turns []Turn) (string, error) {
	if len(c.urls) == 0 {
		return "", fmt.Errorf("no chat endpoints configured")
	}

	messages := make([]Turn, 0, len(turns)+1)
	if config.ChatSystemPrompt != "" {
		messages = append(messages, Turn{Role: RoleSystem, Content: config.ChatSystemPrompt})
	}
	messages = append(messages, turns...)

	var lastErr error
	for _, apiURL := range c.urls {
		reply, err := c.post(ctx, apiURL, messages)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			log.Printf("[Chat] %s failed: %s", apiURL, err)
			lastErr = err
			continue
		}
		return reply, nil
	}
	return "", fmt.Errorf("all chat endpoints failed: %w", lastErr)
}

func (c *Client) post(ctx context.Context, apiURL string, messages []Turn) (string, error) {
	body, _ := json.Marshal(completionRequest{Model: c.model, Messages: messages})

	endpoint := strings.TrimSuffix(apiURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	var parsed completionResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("invalid JSON response")
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("%s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("empty completion")
	}

	log.Printf("[Chat] completion from %s in %s", apiURL, time.Since(start).Round(time.Millisecond))
	return parsed.Choices[0].Message.Content, nil
}
