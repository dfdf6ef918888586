package bot

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/sailsetu/sailsetu/iiq"
)

const defaultMenuTitle = "SailSetu tools: pick an option"

// Options configures an Engine. One engine is constructed per channel
// adapter at process start; nothing here relies on import-time side
// effects.
type Options struct {
	Channel   string
	Registry  *Registry
	Transport Transport
	// Backend is nil when no backend configuration is present; only
	// ConfigFreeFeatures are then enterable.
	Backend iiq.Launcher
	Logger  *slog.Logger
	// ConfigFreeFeatures lists feature ids that work without backend
	// configuration (e.g. system-status).
	ConfigFreeFeatures []string
	// AssumeMaster skips capability filtering entirely. Used by the
	// WhatsApp adapter, whose note-to-self admission rule already limits
	// the channel to the bot operator.
	AssumeMaster bool
	MenuTitle    string
}

// Engine is the transport-agnostic dialog engine: session lifecycle, menu
// construction and selection, capability filtering, feature dispatch, and
// top-level error containment.
type Engine struct {
	channel      string
	registry     *Registry
	store        *Store
	transport    Transport
	backend      iiq.Launcher
	logger       *slog.Logger
	configFree   map[string]bool
	assumeMaster bool
	menuTitle    string
}

func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	title := strings.TrimSpace(opts.MenuTitle)
	if title == "" {
		title = defaultMenuTitle
	}
	configFree := make(map[string]bool, len(opts.ConfigFreeFeatures))
	for _, id := range opts.ConfigFreeFeatures {
		configFree[id] = true
	}
	return &Engine{
		channel:      opts.Channel,
		registry:     opts.Registry,
		store:        NewStore(),
		transport:    opts.Transport,
		backend:      opts.Backend,
		logger:       logger,
		configFree:   configFree,
		assumeMaster: opts.AssumeMaster,
		menuTitle:    title,
	}
}

func (e *Engine) Channel() string  { return e.channel }
func (e *Engine) Sessions() *Store { return e.store }

// Configured reports whether a backend gateway is wired in.
func (e *Engine) Configured() bool { return e.backend != nil }

func (e *Engine) newTurn(sess *Session) *Turn {
	return &Turn{
		Channel: e.channel,
		UserKey: sess.UserKey,
		Session: sess,
		Backend: e.backend,
		engine:  e,
	}
}

// HandleText runs one conversational turn for the given user. Errors from
// features are contained here: they are reported to the user with the
// error message and the session is reset, so no partial state survives.
// The returned error covers outbound delivery only.
func (e *Engine) HandleText(ctx context.Context, userKey, text string) error {
	sess, _ := e.store.GetOrCreate(userKey)
	sess.LastActive = time.Now()
	text = strings.TrimSpace(text)

	switch sess.Step.Kind {
	case StepIdle:
		return e.ShowMenu(ctx, userKey)
	case StepMenu:
		return e.handleMenuChoice(ctx, sess, text)
	case StepFeature:
		return e.dispatchFeature(ctx, sess, text)
	default:
		e.logger.Warn("unknown_step", "channel", e.channel, "user_key", userKey, "step", sess.Step.String())
		sess.Reset()
		return e.ShowMenu(ctx, userKey)
	}
}

// ShowMenu resets the session to the menu step and sends the
// capability-filtered feature menu, preferring the transport's choice
// prompt and falling back to a numbered text list.
func (e *Engine) ShowMenu(ctx context.Context, userKey string) error {
	return e.showMenu(ctx, userKey, false)
}

// ShowMenuPlain is ShowMenu forced to the numbered text list.
func (e *Engine) ShowMenuPlain(ctx context.Context, userKey string) error {
	return e.showMenu(ctx, userKey, true)
}

func (e *Engine) showMenu(ctx context.Context, userKey string, forceText bool) error {
	sess, _ := e.store.GetOrCreate(userKey)
	sess.Reset()

	visible := e.visibleFeatures(sess)
	if len(visible) == 0 {
		return e.transport.Reply(ctx, userKey,
			"No tools are available for your account. Ask your administrator to grant you a SailSetu capability (they follow the SailSetu<ToolName> convention, e.g. "+
				"SailSetuAccessReview), or use the identity verification tool once it is enabled for you.")
	}

	ids := make([]string, len(visible))
	names := make([]string, len(visible))
	for i, f := range visible {
		ids[i] = f.ID()
		names[i] = f.Name()
	}
	sess.MenuOptions = ids
	sess.Step = MenuStep()

	if !forceText {
		err := e.transport.SendChoicePrompt(ctx, userKey, e.menuTitle, names)
		if err == nil {
			return nil
		}
		e.logger.Warn("menu_prompt_fallback", "channel", e.channel, "user_key", userKey, "error", err.Error())
	}
	return e.transport.Reply(ctx, userKey, numberedList(e.menuTitle, names))
}

// visibleFeatures applies the capability filter: a feature is offered if
// the engine assumes master, the feature declares no specific requirement
// (empty or "*"), or the session's capability list contains the exact
// requirement (the master capability unlocks everything).
func (e *Engine) visibleFeatures(sess *Session) []Feature {
	all := e.registry.All()
	if e.assumeMaster {
		return all
	}
	out := make([]Feature, 0, len(all))
	for _, f := range all {
		req := f.RequiredCapability()
		if req == "" || req == CapabilityAnyIdentified || sess.Identity.HasCapability(req) {
			out = append(out, f)
		}
	}
	return out
}

func (e *Engine) handleMenuChoice(ctx context.Context, sess *Session, text string) error {
	f := e.resolveSelection(sess, text)
	if f == nil {
		return e.transport.Reply(ctx, sess.UserKey,
			"❌ Invalid selection. Reply with the number of a menu option, or !menu to see the menu again.")
	}

	if f.RequiredCapability() == CapabilityAnyIdentified && sess.Identity == nil && !e.assumeMaster {
		return e.transport.Reply(ctx, sess.UserKey,
			"❌ I don't know who you are yet. Pick the identity verification tool first.")
	}
	if !e.featureAllowedWithoutConfig(f.ID()) {
		sess.Reset()
		return e.replyConfigMissing(ctx, sess.UserKey)
	}

	sess.Step = FeatureStep(f.ID())
	sess.State = nil
	turn := e.newTurn(sess)
	if err := f.Select(ctx, turn); err != nil {
		return e.failTurn(ctx, sess, f.ID(), err)
	}
	return nil
}

// resolveSelection resolves a menu reply against the offered options:
// exact match on feature name or id first (this is what poll-answer
// clicks deliver), then a 1-based index into the offered list.
func (e *Engine) resolveSelection(sess *Session, text string) Feature {
	lowered := strings.ToLower(text)
	for _, id := range sess.MenuOptions {
		f, ok := e.registry.Get(id)
		if !ok {
			continue
		}
		if lowered == strings.ToLower(f.Name()) || lowered == strings.ToLower(f.ID()) {
			return f
		}
	}
	n, err := strconv.Atoi(text)
	if err != nil || n < 1 || n > len(sess.MenuOptions) {
		return nil
	}
	f, ok := e.registry.Get(sess.MenuOptions[n-1])
	if !ok {
		return nil
	}
	return f
}

func (e *Engine) dispatchFeature(ctx context.Context, sess *Session, text string) error {
	id := sess.Step.FeatureID
	f, ok := e.registry.Get(id)
	if !ok {
		e.logger.Warn("dangling_feature_step", "channel", e.channel, "user_key", sess.UserKey, "feature", id)
		sess.Reset()
		return e.transport.Reply(ctx, sess.UserKey,
			"❌ That tool is no longer available. Returning to the menu; send any message to see it.")
	}
	if !e.featureAllowedWithoutConfig(id) {
		sess.Reset()
		return e.replyConfigMissing(ctx, sess.UserKey)
	}

	turn := e.newTurn(sess)
	if err := f.Handle(ctx, turn, text); err != nil {
		return e.failTurn(ctx, sess, id, err)
	}
	return nil
}

func (e *Engine) featureAllowedWithoutConfig(id string) bool {
	return e.backend != nil || e.configFree[id]
}

func (e *Engine) replyConfigMissing(ctx context.Context, userKey string) error {
	return e.transport.Reply(ctx, userKey,
		"❌ Backend configuration is missing. Set iiq.base_url, iiq.username and iiq.password, then try again.")
}

func (e *Engine) failTurn(ctx context.Context, sess *Session, featureID string, err error) error {
	e.logger.Warn("feature_error", "channel", e.channel, "user_key", sess.UserKey, "feature", featureID, "error", err.Error())
	sess.Reset()
	return e.transport.Reply(ctx, sess.UserKey, "❌ "+err.Error()+"\nReturning to the menu; send any message to see it.")
}
