// Package whatsapp runs the WhatsApp channel adapter: a websocket client
// to a WhatsApp web bridge, operating in note-to-self mode for a single
// operator account.
package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sailsetu/sailsetu/bot"
)

// Channel is the name this adapter registers sessions under.
const Channel = "whatsapp"

// botPrefix marks outbound messages so the adapter can tell its own
// status lines apart from operator input in the note-to-self thread.
const botPrefix = "BOT: "

// Connection states exposed through Status.
const (
	StateConnecting   = "connecting"
	StateWaitingQR    = "waiting_qr"
	StateReady        = "ready"
	StateDisconnected = "disconnected"
)

type RunOptions struct {
	BridgeURL      string
	ReconnectDelay time.Duration
}

// Status is a point-in-time snapshot of the bridge connection, served by
// the status server.
type Status struct {
	State    string
	QR       string
	OwnerID  string
	Sessions int
}

// Runtime is the WhatsApp adapter. It implements bot.Transport for the
// engine it drives.
type Runtime struct {
	engine *bot.Engine
	logger *slog.Logger
	opts   RunOptions
	dial   func(ctx context.Context) (bridgeConn, error)

	mu      sync.Mutex
	conn    bridgeConn
	state   string
	qr      string
	ownerID string
}

// NewRuntime builds the adapter. The engine is created through the
// factory so it can be handed this runtime as its transport.
func NewRuntime(engineFactory func(bot.Transport) *bot.Engine, logger *slog.Logger, opts RunOptions) (*Runtime, error) {
	if strings.TrimSpace(opts.BridgeURL) == "" {
		return nil, fmt.Errorf("missing whatsapp.bridge_url (set via --whatsapp-bridge-url or SAILSETU_WHATSAPP_BRIDGE_URL)")
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	rt := &Runtime{
		logger: logger,
		opts:   opts,
		state:  StateConnecting,
	}
	rt.dial = func(ctx context.Context) (bridgeConn, error) {
		return dialBridge(ctx, opts.BridgeURL)
	}
	rt.engine = engineFactory(rt)
	return rt, nil
}

func (rt *Runtime) Engine() *bot.Engine { return rt.engine }

// Status reports the connection snapshot for the status server.
func (rt *Runtime) Status() Status {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return Status{
		State:    rt.state,
		QR:       rt.qr,
		OwnerID:  rt.ownerID,
		Sessions: rt.engine.Sessions().Len(),
	}
}

// Reply implements bot.Transport. Outbound text carries the bot prefix
// so it is never re-admitted as operator input.
func (rt *Runtime) Reply(ctx context.Context, userKey, text string) error {
	return rt.sendText(userKey, botPrefix+text)
}

// SendChoicePrompt implements bot.Transport: menus go out as native
// polls. Any bridge error bubbles up so the engine falls back to a
// numbered text list.
func (rt *Runtime) SendChoicePrompt(ctx context.Context, userKey, title string, options []string) error {
	conn := rt.currentConn()
	if conn == nil {
		return errors.New("whatsapp bridge not connected")
	}
	pollID, err := conn.SendPoll(userKey, title, options)
	if err != nil {
		return err
	}
	rt.logger.Debug("whatsapp_poll_sent", "poll_id", pollID, "options", len(options))
	return nil
}

// Run dials the bridge and reads events until the context is cancelled.
// A dropped connection is redialed after a fixed delay; the loop never
// gives up on its own.
func (rt *Runtime) Run(ctx context.Context) error {
	rt.logger.Info("whatsapp_start", "bridge_url", rt.opts.BridgeURL)
	for {
		rt.setState(StateConnecting)
		conn, err := rt.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				rt.logger.Info("whatsapp_stop", "reason", "context_canceled")
				return nil
			}
			rt.setState(StateDisconnected)
			rt.logger.Warn("whatsapp_bridge_dial_error", "error", err.Error())
			if !sleepCtx(ctx, rt.opts.ReconnectDelay) {
				return nil
			}
			continue
		}
		rt.setConn(conn)

		err = rt.readLoop(ctx, conn)
		_ = conn.Close()
		rt.setConn(nil)
		rt.setState(StateDisconnected)
		if ctx.Err() != nil {
			rt.logger.Info("whatsapp_stop", "reason", "context_canceled")
			return nil
		}
		rt.logger.Warn("whatsapp_bridge_read_error", "error", err.Error())
		if !sleepCtx(ctx, rt.opts.ReconnectDelay) {
			return nil
		}
	}
}

func (rt *Runtime) readLoop(ctx context.Context, conn bridgeConn) error {
	for {
		ev, err := conn.ReadEvent()
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rt.handleEvent(ctx, ev)
	}
}

func (rt *Runtime) handleEvent(ctx context.Context, ev *Event) {
	switch ev.Type {
	case EventQR:
		rt.mu.Lock()
		rt.state = StateWaitingQR
		rt.qr = ev.QR
		rt.mu.Unlock()
		rt.logger.Info("whatsapp_qr", "hint", "scan via status endpoint /api/whatsapp/qr")

	case EventReady:
		rt.mu.Lock()
		rt.state = StateReady
		rt.qr = ""
		rt.ownerID = ev.SelfID
		rt.mu.Unlock()
		rt.logger.Info("whatsapp_ready", "owner", ev.SelfID)
		if err := rt.sendText(ev.SelfID, botPrefix+"✅ SailSetu connected. Say 'hi sailsetu' for the menu."); err != nil {
			rt.logger.Warn("whatsapp_send_error", "error", err.Error())
		}

	case EventDisconnected:
		rt.setState(StateDisconnected)
		rt.logger.Warn("whatsapp_session_disconnected")

	case EventMessage:
		if ev.Message != nil {
			rt.handleMessage(ctx, ev.Message)
		}

	case EventVote:
		if ev.Vote != nil {
			rt.handleVote(ctx, ev.Vote)
		}

	default:
		rt.logger.Debug("whatsapp_event_ignored", "type", ev.Type)
	}
}

// handleMessage applies the note-to-self admission rule: only messages
// the operator sent to their own chat count, and the adapter's own
// prefixed status lines are skipped.
func (rt *Runtime) handleMessage(ctx context.Context, m *InboundMessage) {
	owner := rt.owner()
	if owner == "" || !m.FromMe || m.To != owner {
		return
	}
	body := strings.TrimSpace(m.Body)
	if body == "" || strings.HasPrefix(body, strings.TrimSpace(botPrefix)) {
		return
	}
	rt.handleText(ctx, owner, body)
}

// handleVote turns a poll answer from the operator into a synthetic
// message carrying the selected option text, then routes it through the
// normal message path.
func (rt *Runtime) handleVote(ctx context.Context, v *PollVote) {
	owner := rt.owner()
	if owner == "" || v.Voter != owner || len(v.Selected) == 0 {
		return
	}
	rt.handleText(ctx, owner, strings.TrimSpace(v.Selected[0]))
}

func (rt *Runtime) handleText(ctx context.Context, userKey, text string) {
	lower := strings.ToLower(text)

	// While asleep only the wake phrase is acted on; everything else,
	// commands included, is dropped silently.
	if sess, ok := rt.engine.Sessions().Get(userKey); ok && sess.Asleep {
		if !isWakePhrase(lower) {
			return
		}
		sess.Asleep = false
		sess.Reset()
		rt.showMenu(ctx, userKey, false)
		return
	}

	// Liveness probe; answered without touching the session.
	if lower == "!ping" {
		if err := rt.Reply(ctx, userKey, "pong"); err != nil {
			rt.logger.Warn("whatsapp_send_error", "error", err.Error())
		}
		return
	}

	sess, _ := rt.engine.Sessions().GetOrCreate(userKey)

	// The note-to-self chat doubles as the operator's own notepad, so
	// only commands, wake phrases, and mid-dialog turns are picked up.
	if !strings.HasPrefix(text, "!") && !midFlow(sess) && !isWakePhrase(lower) {
		return
	}

	switch lower {
	case "exit", "bye", "close":
		sess.Asleep = true
		sess.Reset()
		if err := rt.Reply(ctx, userKey, "⏸️ SailSetu paused. Say 'hi sailsetu' to resume."); err != nil {
			rt.logger.Warn("whatsapp_send_error", "error", err.Error())
		}
		return
	}

	if isWakePhrase(lower) {
		sess.Reset()
		rt.showMenu(ctx, userKey, false)
		return
	}

	switch lower {
	case "!reset", "!menu", "!tools":
		sess.Reset()
		rt.showMenu(ctx, userKey, false)
		return
	case "!textmenu":
		sess.Reset()
		rt.showMenu(ctx, userKey, true)
		return
	}

	if err := rt.engine.HandleText(ctx, userKey, text); err != nil {
		rt.logger.Warn("whatsapp_send_error", "error", err.Error())
	}
}

func (rt *Runtime) showMenu(ctx context.Context, userKey string, forceText bool) {
	var err error
	if forceText {
		err = rt.engine.ShowMenuPlain(ctx, userKey)
	} else {
		err = rt.engine.ShowMenu(ctx, userKey)
	}
	if err != nil {
		rt.logger.Warn("whatsapp_send_error", "error", err.Error())
	}
}

func isWakePhrase(lower string) bool {
	switch lower {
	case "hi sailsetu", "hello sailsetu":
		return true
	}
	return false
}

func midFlow(sess *bot.Session) bool {
	return sess.Step.Kind != bot.StepIdle
}

func (rt *Runtime) owner() string {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.ownerID
}

func (rt *Runtime) currentConn() bridgeConn {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.conn
}

func (rt *Runtime) setConn(conn bridgeConn) {
	rt.mu.Lock()
	rt.conn = conn
	rt.mu.Unlock()
}

func (rt *Runtime) setState(state string) {
	rt.mu.Lock()
	rt.state = state
	if state != StateWaitingQR {
		rt.qr = ""
	}
	rt.mu.Unlock()
}

func (rt *Runtime) sendText(to, body string) error {
	conn := rt.currentConn()
	if conn == nil {
		return errors.New("whatsapp bridge not connected")
	}
	return conn.SendText(to, body)
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
