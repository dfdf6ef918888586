package features

import (
	"context"
	"strings"

	"github.com/sailsetu/sailsetu/bot"
)

// VerifyWorkflow authenticates a user and links their chat address to a
// backend identity. Expected output attributes: verified, displayName,
// capabilities (JSON-encoded list).
const VerifyWorkflow = "VerifyIdentity"

type verifyStep int

const (
	verifyStepName verifyStep = iota
	verifyStepPassword
)

type verifyState struct {
	step         verifyStep
	identityName string
}

// VerifyIdentity links a chat session to a backend identity by
// username/password. A wrong password keeps the user at the password
// prompt instead of resetting the dialog.
type VerifyIdentity struct{}

func NewVerifyIdentity() *VerifyIdentity { return &VerifyIdentity{} }

func (f *VerifyIdentity) ID() string   { return "verify-identity" }
func (f *VerifyIdentity) Name() string { return "Verify identity" }
func (f *VerifyIdentity) Description() string {
	return "Link this chat to your backend identity"
}

func (f *VerifyIdentity) RequiredCapability() string { return "" }

func (f *VerifyIdentity) Select(ctx context.Context, turn *bot.Turn) error {
	turn.Session.State = &verifyState{step: verifyStepName}
	return turn.Reply(ctx, "Let's link your identity. Reply with your identity name (type cancel to stop).")
}

func (f *VerifyIdentity) Handle(ctx context.Context, turn *bot.Turn, text string) error {
	st, ok := turn.Session.State.(*verifyState)
	if !ok {
		return f.Select(ctx, turn)
	}
	if strings.EqualFold(strings.TrimSpace(text), "cancel") {
		turn.Reset()
		return turn.Reply(ctx, "Identity verification cancelled.")
	}

	switch st.step {
	case verifyStepName:
		st.identityName = strings.TrimSpace(text)
		if st.identityName == "" {
			return turn.Reply(ctx, "I need an identity name. Try again.")
		}
		st.step = verifyStepPassword
		return turn.Reply(ctx, "Now reply with your password.")

	case verifyStepPassword:
		res, err := turn.Backend.LaunchWorkflow(ctx, VerifyWorkflow, map[string]string{
			"identityName": st.identityName,
			"password":     strings.TrimSpace(text),
			"channel":      turn.Channel,
			"address":      turn.UserKey,
		})
		if err != nil {
			return err
		}
		if !res.BoolAttr("verified") {
			// Stay at the password prompt so the user can retry.
			return turn.Reply(ctx, "❌ That password didn't match. Try again, or type cancel.")
		}

		display := res.StringAttr("displayName")
		if display == "" {
			display = st.identityName
		}
		var caps []string
		_ = res.JSONAttr("capabilities", &caps)
		turn.Session.Identity = &bot.Identity{
			Name:         st.identityName,
			DisplayName:  display,
			Capabilities: caps,
		}
		if err := turn.Replyf(ctx, "✅ Welcome, %s! Your chat is now linked.", display); err != nil {
			return err
		}
		turn.Reset()
		return turn.ShowMenu(ctx)

	default:
		return f.Select(ctx, turn)
	}
}
