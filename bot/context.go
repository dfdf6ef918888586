package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sailsetu/sailsetu/iiq"
)

// ErrChoicePromptUnsupported is returned by a Transport whose channel has
// no native choice prompt (or whose delivery failed); the engine falls
// back to a numbered text menu.
var ErrChoicePromptUnsupported = errors.New("choice prompt unsupported")

// Transport is the outbound half of a channel adapter. Reply sends a
// plain message to the user; SendChoicePrompt presents a pick-one prompt
// (a poll on channels that have one).
type Transport interface {
	Reply(ctx context.Context, userKey, text string) error
	SendChoicePrompt(ctx context.Context, userKey, title string, options []string) error
}

// Turn is the per-message context handed to features. It is constructed
// fresh for each incoming message and never persisted.
type Turn struct {
	Channel string
	UserKey string
	Session *Session
	Backend iiq.Launcher

	engine *Engine
}

// Reply sends a message back to this turn's user.
func (t *Turn) Reply(ctx context.Context, text string) error {
	return t.engine.transport.Reply(ctx, t.UserKey, text)
}

// Replyf is Reply with fmt formatting.
func (t *Turn) Replyf(ctx context.Context, format string, args ...any) error {
	return t.Reply(ctx, fmt.Sprintf(format, args...))
}

// SendChoice presents a pick-one prompt, falling back to a numbered text
// list when the transport cannot deliver one.
func (t *Turn) SendChoice(ctx context.Context, title string, options []string) error {
	err := t.engine.transport.SendChoicePrompt(ctx, t.UserKey, title, options)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrChoicePromptUnsupported) {
		t.engine.logger.Warn("choice_prompt_error", "channel", t.Channel, "user_key", t.UserKey, "error", err.Error())
	}
	return t.Reply(ctx, numberedList(title, options))
}

// Reset returns this turn's session to idle.
func (t *Turn) Reset() {
	t.Session.Reset()
}

// ShowMenu resets the session and resends the main menu.
func (t *Turn) ShowMenu(ctx context.Context) error {
	return t.engine.ShowMenu(ctx, t.UserKey)
}

func numberedList(title string, options []string) string {
	var b strings.Builder
	b.WriteString(title)
	for i, opt := range options {
		fmt.Fprintf(&b, "\n%d. %s", i+1, opt)
	}
	return b.String()
}
