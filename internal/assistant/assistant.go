// Package assistant forwards user questions, with a fixed domain context, to a
// chat-completion API. It keeps no conversation state of its own.
package assistant

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"remit/internal/models"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"

	maxHistory    = 20
	maxMessageLen = 2000
)

var (
	ErrUnavailable   = errors.New("assistant unavailable")
	ErrNotConfigured = errors.New("assistant is not configured")
	ErrEmptyMessage  = errors.New("message is required")
	ErrMessageLength = fmt.Errorf("message exceeds %d characters", maxMessageLen)
)

//go:embed context.yaml
var contextYAML []byte

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completer is a chat-completion backend.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

type domainContext struct {
	SystemPrompt string              `yaml:"system_prompt"`
	Suggestions  map[string][]string `yaml:"suggestions"`
}

type Assistant struct {
	completer Completer
	ctx       domainContext
	logger    *zap.Logger
}

// New loads the embedded domain context. completer may be nil, in which case
// Ask reports ErrNotConfigured.
func New(completer Completer, logger *zap.Logger) (*Assistant, error) {
	dc, err := parseContext(contextYAML)
	if err != nil {
		return nil, err
	}
	return &Assistant{completer: completer, ctx: dc, logger: logger}, nil
}

func parseContext(data []byte) (domainContext, error) {
	var dc domainContext
	if err := yaml.Unmarshal(data, &dc); err != nil {
		return dc, fmt.Errorf("failed to parse assistant context: %w", err)
	}
	if strings.TrimSpace(dc.SystemPrompt) == "" {
		return dc, errors.New("assistant context has no system_prompt")
	}
	return dc, nil
}

// Configured reports whether a completion backend is wired.
func (a *Assistant) Configured() bool {
	return a.completer != nil
}

// Suggestions returns the starter questions for locale.
func (a *Assistant) Suggestions(locale string) []string {
	if s, ok := a.ctx.Suggestions[models.NormalizeLocale(locale)]; ok {
		return s
	}
	return a.ctx.Suggestions[models.DefaultLocale]
}

// Ask sends the system context, the caller's recent history and message, and
// returns the reply verbatim.
func (a *Assistant) Ask(ctx context.Context, message string, history []Message) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", ErrEmptyMessage
	}
	if utf8.RuneCountInString(message) > maxMessageLen {
		return "", ErrMessageLength
	}
	if a.completer == nil {
		return "", ErrNotConfigured
	}

	messages := make([]Message, 0, maxHistory+2)
	messages = append(messages, Message{Role: RoleSystem, Content: a.ctx.SystemPrompt})
	messages = append(messages, trimHistory(history)...)
	messages = append(messages, Message{Role: RoleUser, Content: message})

	reply, err := a.completer.Complete(ctx, messages)
	if err != nil {
		if errors.Is(err, ErrNotConfigured) {
			return "", err
		}
		a.logger.Warn("assistant completion failed", zap.Error(err))
		return "", ErrUnavailable
	}
	return reply, nil
}

// trimHistory keeps the last maxHistory user/assistant turns. Other roles and
// empty turns are dropped so callers cannot inject a system prompt.
func trimHistory(history []Message) []Message {
	kept := make([]Message, 0, len(history))
	for _, m := range history {
		if m.Role != RoleUser && m.Role != RoleAssistant {
			continue
		}
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		if utf8.RuneCountInString(content) > maxMessageLen {
			content = string([]rune(content)[:maxMessageLen])
		}
		kept = append(kept, Message{Role: m.Role, Content: content})
	}
	if len(kept) > maxHistory {
		kept = kept[len(kept)-maxHistory:]
	}
	return kept
}
