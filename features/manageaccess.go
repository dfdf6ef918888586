package features

import (
	"context"
	"fmt"
	"strings"

	"github.com/sailsetu/sailsetu/bot"
)

// Workflows used by the manage-access dialog.
const (
	IdentityDetailsWorkflow = "GetIdentityDetails"
	ManageAccessWorkflow    = "ManageAccess"
)

type manageStep int

const (
	manageStepTarget manageStep = iota
	manageStepAction
	manageStepApplication
	manageStepAttribute
	manageStepValue
	manageStepConfirm
)

type manageState struct {
	step         manageStep
	identityName string
	displayName  string
	action       string
	application  string
	attribute    string
	value        string
}

var manageActions = []string{"Grant access", "Revoke access"}

// ManageAccess grants or revokes an entitlement on an identity:
// search → action → application/attribute/value prompts → confirmation →
// execute. Anything but an affirmative reply at the confirmation step
// cancels with zero mutating calls.
type ManageAccess struct{}

func NewManageAccess() *ManageAccess { return &ManageAccess{} }

func (f *ManageAccess) ID() string   { return "manage-access" }
func (f *ManageAccess) Name() string { return "Manage access" }
func (f *ManageAccess) Description() string {
	return "Grant or revoke application access for an identity"
}

func (f *ManageAccess) RequiredCapability() string { return "SailSetuManageAccess" }

func (f *ManageAccess) Select(ctx context.Context, turn *bot.Turn) error {
	turn.Session.State = &manageState{step: manageStepTarget}
	return turn.Reply(ctx, "Which identity should I manage? Reply with an identity name.")
}

func (f *ManageAccess) Handle(ctx context.Context, turn *bot.Turn, text string) error {
	st, ok := turn.Session.State.(*manageState)
	if !ok {
		return f.Select(ctx, turn)
	}

	switch st.step {
	case manageStepTarget:
		res, err := turn.Backend.LaunchWorkflow(ctx, IdentityDetailsWorkflow, map[string]string{
			"identityName": strings.TrimSpace(text),
		})
		if err != nil {
			return err
		}
		if !res.BoolAttr("found") {
			return turn.Replyf(ctx, "No identity named %q. Try another name.", strings.TrimSpace(text))
		}
		st.identityName = res.StringAttr("identityName")
		if st.identityName == "" {
			st.identityName = strings.TrimSpace(text)
		}
		st.displayName = res.StringAttr("displayName")
		if st.displayName == "" {
			st.displayName = st.identityName
		}
		st.step = manageStepAction
		return turn.SendChoice(ctx, fmt.Sprintf("What should I do for %s?", st.displayName), manageActions)

	case manageStepAction:
		switch choiceIndex(text, manageActions) {
		case 0:
			st.action = "grant"
		case 1:
			st.action = "revoke"
		default:
			if strings.EqualFold(strings.TrimSpace(text), "grant") {
				st.action = "grant"
			} else if strings.EqualFold(strings.TrimSpace(text), "revoke") {
				st.action = "revoke"
			} else {
				return turn.Reply(ctx, "Reply 1 to grant or 2 to revoke.")
			}
		}
		st.step = manageStepApplication
		return turn.Reply(ctx, "Which application?")

	case manageStepApplication:
		st.application = strings.TrimSpace(text)
		if st.application == "" {
			return turn.Reply(ctx, "I need an application name. Try again.")
		}
		st.step = manageStepAttribute
		return turn.Reply(ctx, "Which attribute (for example: groups)?")

	case manageStepAttribute:
		st.attribute = strings.TrimSpace(text)
		if st.attribute == "" {
			return turn.Reply(ctx, "I need an attribute name. Try again.")
		}
		st.step = manageStepValue
		return turn.Reply(ctx, "Which value?")

	case manageStepValue:
		st.value = strings.TrimSpace(text)
		if st.value == "" {
			return turn.Reply(ctx, "I need a value. Try again.")
		}
		st.step = manageStepConfirm
		return turn.Replyf(ctx,
			"About to %s %s = %q on %s for %s.\nReply yes to proceed; anything else cancels.",
			st.action, st.attribute, st.value, st.application, st.displayName)

	case manageStepConfirm:
		if !isAffirmative(text) {
			turn.Reset()
			return turn.Reply(ctx, "Cancelled. Nothing was changed.")
		}
		if _, err := turn.Backend.LaunchWorkflow(ctx, ManageAccessWorkflow, map[string]string{
			"identityName": st.identityName,
			"action":       st.action,
			"application":  st.application,
			"attribute":    st.attribute,
			"value":        st.value,
		}); err != nil {
			return err
		}
		summary := fmt.Sprintf("✅ Submitted: %s %s = %q on %s for %s.",
			st.action, st.attribute, st.value, st.application, st.displayName)
		turn.Reset()
		return turn.Reply(ctx, summary)

	default:
		return f.Select(ctx, turn)
	}
}
