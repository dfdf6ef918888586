// Package telegram runs the Telegram channel adapter: a getUpdates long
// poll feeding the shared dialog engine, with automatic identity
// resolution by chat id.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sailsetu/sailsetu/bot"
	"github.com/sailsetu/sailsetu/iiq"
	"github.com/sailsetu/sailsetu/internal/channelruntime/worker"
)

// Channel is the name this adapter registers sessions under.
const Channel = "telegram"

const defaultVerifyFeatureID = "verify-identity"

type RunOptions struct {
	BotToken       string
	BaseURL        string
	PollTimeout    time.Duration
	RetryDelay     time.Duration
	MaxConcurrency int
	QueueSize      int
	// VerifyFeatureID is the feature during which automatic identity
	// resolution is suspended (the user is mid-way through linking).
	VerifyFeatureID string
}

type job struct {
	ChatID      int64
	Text        string
	DisplayName string
}

// Runtime is the Telegram adapter. It implements bot.Transport for the
// engine it drives.
type Runtime struct {
	api     *telegramAPI
	engine  *bot.Engine
	backend *iiq.Client
	logger  *slog.Logger
	opts    RunOptions
}

// NewRuntime builds the adapter. The engine is created through the
// factory so it can be handed this runtime as its transport.
func NewRuntime(engineFactory func(bot.Transport) *bot.Engine, backend *iiq.Client, logger *slog.Logger, opts RunOptions) (*Runtime, error) {
	if strings.TrimSpace(opts.BotToken) == "" {
		return nil, fmt.Errorf("missing telegram.bot_token (set via --telegram-bot-token or SAILSETU_TELEGRAM_BOT_TOKEN)")
	}
	if strings.TrimSpace(opts.BaseURL) == "" {
		opts.BaseURL = "https://api.telegram.org"
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 30 * time.Second
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 1 * time.Second
	}
	if opts.MaxConcurrency < 1 {
		opts.MaxConcurrency = 4
	}
	if strings.TrimSpace(opts.VerifyFeatureID) == "" {
		opts.VerifyFeatureID = defaultVerifyFeatureID
	}
	if logger == nil {
		logger = slog.Default()
	}
	rt := &Runtime{
		api:     newTelegramAPI(&http.Client{Timeout: 60 * time.Second}, opts.BaseURL, opts.BotToken),
		backend: backend,
		logger:  logger,
		opts:    opts,
	}
	rt.engine = engineFactory(rt)
	return rt, nil
}

// Reply implements bot.Transport.
func (rt *Runtime) Reply(ctx context.Context, userKey, text string) error {
	chatID, err := strconv.ParseInt(userKey, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram user key %q is not a chat id", userKey)
	}
	return rt.api.sendMessage(ctx, chatID, text)
}

// SendChoicePrompt implements bot.Transport. Telegram menus go out as
// numbered text lists; the engine's fallback renders them.
func (rt *Runtime) SendChoicePrompt(ctx context.Context, userKey, title string, options []string) error {
	return bot.ErrChoicePromptUnsupported
}

func (rt *Runtime) Engine() *bot.Engine { return rt.engine }

// Run polls getUpdates until the context is cancelled. Transport errors
// are logged and retried after a fixed delay; the loop never gives up on
// its own.
func (rt *Runtime) Run(ctx context.Context) error {
	var me *telegramUser
	var err error
	for {
		me, err = rt.api.getMe(ctx)
		if err == nil {
			break
		}
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			rt.logger.Info("telegram_stop", "reason", "context_canceled")
			return nil
		}
		rt.logger.Warn("telegram_get_me_error", "error", err.Error())
		if !sleepCtx(ctx, 2*time.Second) {
			rt.logger.Info("telegram_stop", "reason", "context_canceled")
			return nil
		}
	}

	rt.logger.Info("telegram_start",
		"bot_username", me.Username,
		"bot_id", me.ID,
		"poll_timeout", rt.opts.PollTimeout.String(),
		"max_concurrency", rt.opts.MaxConcurrency,
	)

	pool := worker.NewPool(ctx, rt.opts.MaxConcurrency, rt.opts.QueueSize, rt.handleJob)

	var offset int64
	for {
		updates, nextOffset, err := rt.api.getUpdates(ctx, offset, rt.opts.PollTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				rt.logger.Info("telegram_stop", "reason", "context_canceled")
				return nil
			}
			if isPollTimeoutError(err) {
				rt.logger.Debug("telegram_get_updates_timeout", "error", err.Error())
			} else {
				rt.logger.Warn("telegram_get_updates_error", "error", err.Error())
			}
			if !sleepCtx(ctx, rt.opts.RetryDelay) {
				return nil
			}
			continue
		}
		offset = nextOffset

		for _, u := range updates {
			msg := u.Message
			if msg == nil || msg.Chat == nil {
				continue
			}
			if msg.From != nil && msg.From.IsBot {
				continue
			}
			text := strings.TrimSpace(msg.Text)
			if text == "" {
				continue
			}
			j := job{
				ChatID:      msg.Chat.ID,
				Text:        text,
				DisplayName: telegramDisplayName(msg.From),
			}
			key := strconv.FormatInt(j.ChatID, 10)
			if err := pool.Enqueue(key, j); err != nil {
				rt.logger.Warn("telegram_enqueue_error", "chat_id", j.ChatID, "error", err.Error())
			}
		}
	}
}

func (rt *Runtime) handleJob(ctx context.Context, j job) {
	key := strconv.FormatInt(j.ChatID, 10)
	sess, created := rt.engine.Sessions().GetOrCreate(key)

	// Identity auto-recognition: on first contact and again on any later
	// message while still unidentified, so out-of-band linking is picked
	// up on the next message without restarting the conversation.
	if rt.backend != nil && sess.Identity == nil && !rt.inVerifyFeature(sess) {
		rt.resolveIdentity(ctx, key, sess, created)
	}

	switch strings.ToLower(j.Text) {
	case "!menu", "!tools", "hi", "/start":
		if err := rt.engine.ShowMenu(ctx, key); err != nil {
			rt.logger.Warn("telegram_send_error", "chat_id", j.ChatID, "error", err.Error())
		}
		return
	}

	if err := rt.engine.HandleText(ctx, key, j.Text); err != nil {
		rt.logger.Warn("telegram_send_error", "chat_id", j.ChatID, "error", err.Error())
	}
}

func (rt *Runtime) inVerifyFeature(sess *bot.Session) bool {
	return sess.Step.Kind == bot.StepFeature && sess.Step.FeatureID == rt.opts.VerifyFeatureID
}

func (rt *Runtime) resolveIdentity(ctx context.Context, key string, sess *bot.Session, greet bool) {
	lookupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	res, err := rt.backend.LookupIdentityByPhone(lookupCtx, key)
	if err != nil {
		rt.logger.Warn("telegram_identity_lookup_error", "chat_id", key, "error", err.Error())
		return
	}
	if !res.Found {
		return
	}
	sess.Identity = &bot.Identity{
		Name:         res.IdentityName,
		DisplayName:  res.DisplayName,
		Capabilities: res.Capabilities,
	}
	rt.logger.Info("telegram_identity_resolved", "chat_id", key, "identity", res.IdentityName, "capabilities", len(res.Capabilities))
	if greet {
		if err := rt.Reply(ctx, key, fmt.Sprintf("Hello %s! Send !menu to see your tools.", res.DisplayName)); err != nil {
			rt.logger.Warn("telegram_send_error", "chat_id", key, "error", err.Error())
		}
	}
}

// sleepCtx waits d, returning false when the context ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
