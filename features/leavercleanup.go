package features

import (
	"context"
	"fmt"
	"strings"

	"github.com/sailsetu/sailsetu/bot"
)

// Workflows used by the leaver-cleanup dialog.
const (
	FlaggedLeaversWorkflow = "GetFlaggedLeavers"
	LeaverCleanupWorkflow  = "LeaverCleanup"
)

// progressEvery is the batch progress cadence: one update per this many
// processed targets, so long batches don't look stalled.
const progressEvery = 5

type leaverStep int

const (
	leaverStepTarget leaverStep = iota
	leaverStepConfirmSingle
	leaverStepConfirmAll
)

type leaverState struct {
	step         leaverStep
	identityName string
	displayName  string
	targets      []string
}

// LeaverCleanup deprovisions leaver accounts: a single identity by name,
// or every flagged leaver sequentially with progress updates and a final
// success/failure tally.
type LeaverCleanup struct{}

func NewLeaverCleanup() *LeaverCleanup { return &LeaverCleanup{} }

func (f *LeaverCleanup) ID() string   { return "leaver-cleanup" }
func (f *LeaverCleanup) Name() string { return "Leaver cleanup" }
func (f *LeaverCleanup) Description() string {
	return "Deprovision accounts for one leaver or all flagged leavers"
}

func (f *LeaverCleanup) RequiredCapability() string { return "SailSetuLeaverCleanup" }

func (f *LeaverCleanup) Select(ctx context.Context, turn *bot.Turn) error {
	turn.Session.State = &leaverState{step: leaverStepTarget}
	return turn.Reply(ctx, "Reply with the leaver's identity name, or 'all' to process every flagged leaver.")
}

func (f *LeaverCleanup) Handle(ctx context.Context, turn *bot.Turn, text string) error {
	st, ok := turn.Session.State.(*leaverState)
	if !ok {
		return f.Select(ctx, turn)
	}

	switch st.step {
	case leaverStepTarget:
		if strings.EqualFold(strings.TrimSpace(text), "all") {
			return f.prepareBulk(ctx, turn, st)
		}
		res, err := turn.Backend.LaunchWorkflow(ctx, IdentityDetailsWorkflow, map[string]string{
			"identityName": strings.TrimSpace(text),
		})
		if err != nil {
			return err
		}
		if !res.BoolAttr("found") {
			return turn.Replyf(ctx, "No identity named %q. Try another name, or 'all'.", strings.TrimSpace(text))
		}
		st.identityName = res.StringAttr("identityName")
		if st.identityName == "" {
			st.identityName = strings.TrimSpace(text)
		}
		st.displayName = res.StringAttr("displayName")
		if st.displayName == "" {
			st.displayName = st.identityName
		}
		st.step = leaverStepConfirmSingle
		return turn.Replyf(ctx,
			"About to clean up all accounts of %s.\nReply yes to proceed; anything else cancels.",
			st.displayName)

	case leaverStepConfirmSingle:
		if !isAffirmative(text) {
			turn.Reset()
			return turn.Reply(ctx, "Cancelled. Nothing was changed.")
		}
		if _, err := turn.Backend.LaunchWorkflow(ctx, LeaverCleanupWorkflow, map[string]string{
			"identityName": st.identityName,
		}); err != nil {
			return err
		}
		summary := fmt.Sprintf("✅ Cleanup submitted for %s.", st.displayName)
		turn.Reset()
		return turn.Reply(ctx, summary)

	case leaverStepConfirmAll:
		if !isAffirmative(text) {
			turn.Reset()
			return turn.Reply(ctx, "Cancelled. Nothing was changed.")
		}
		return f.runBulk(ctx, turn, st)

	default:
		return f.Select(ctx, turn)
	}
}

func (f *LeaverCleanup) prepareBulk(ctx context.Context, turn *bot.Turn, st *leaverState) error {
	res, err := turn.Backend.LaunchWorkflow(ctx, FlaggedLeaversWorkflow, nil)
	if err != nil {
		return err
	}
	var targets []string
	if err := res.JSONAttr("leavers", &targets); err != nil || len(targets) == 0 {
		turn.Reset()
		return turn.Reply(ctx, "No flagged leavers right now.")
	}
	st.targets = targets
	st.step = leaverStepConfirmAll
	preview := joinCapped(
		fmt.Sprintf("About to clean up %d flagged leaver account(s):", len(targets)),
		targets, 1000)
	return turn.Reply(ctx, preview+"\nReply yes to proceed; anything else cancels.")
}

// runBulk processes targets sequentially, accumulating success/failure
// counts. A failed target does not stop the batch.
func (f *LeaverCleanup) runBulk(ctx context.Context, turn *bot.Turn, st *leaverState) error {
	var succeeded, failed int
	details := make([]string, 0, len(st.targets))
	for i, name := range st.targets {
		_, err := turn.Backend.LaunchWorkflow(ctx, LeaverCleanupWorkflow, map[string]string{
			"identityName": name,
		})
		if err != nil {
			failed++
			details = append(details, fmt.Sprintf("❌ %s: %s", name, err.Error()))
		} else {
			succeeded++
			details = append(details, fmt.Sprintf("✅ %s", name))
		}
		done := i + 1
		if done%progressEvery == 0 && done < len(st.targets) {
			// Progress is best-effort; a dropped update shouldn't stop the batch.
			_ = turn.Replyf(ctx, "Progress: %d/%d processed…", done, len(st.targets))
		}
	}
	summary := joinCapped(
		fmt.Sprintf("Leaver cleanup finished: %d processed, %d succeeded, %d failed.",
			len(st.targets), succeeded, failed),
		details, messageLimit)
	turn.Reset()
	return turn.Reply(ctx, summary)
}
