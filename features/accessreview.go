package features

import (
	"context"
	"fmt"
	"strings"

	"github.com/sailsetu/sailsetu/bot"
)

// Workflows used by the access-review dialog.
const (
	PendingCertificationsWorkflow = "GetPendingCertifications"
	CertificationItemsWorkflow    = "GetCertificationItems"
	DecideItemWorkflow            = "DecideCertificationItem"
	SignOffWorkflow               = "SignOffCertification"
)

type reviewRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type itemRef struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

type reviewStep int

const (
	reviewStepPickReview reviewStep = iota
	reviewStepPickItem
	reviewStepDecide
)

type reviewState struct {
	step    reviewStep
	reviews []reviewRef
	review  reviewRef
	items   []itemRef
	item    itemRef
}

var decisionOptions = []string{"Approve", "Revoke", "Cancel"}

const (
	itemOptionSignOff = "Sign off"
	itemOptionDone    = "Done"
)

// AccessReview walks pending certifications: pick a review, pick an item,
// record a decision, and loop back to the item list so several decisions
// can be made without re-selecting the review. Cancel at the decision
// step returns to the item list; only Done exits.
type AccessReview struct{}

func NewAccessReview() *AccessReview { return &AccessReview{} }

func (f *AccessReview) ID() string   { return "access-review" }
func (f *AccessReview) Name() string { return "Access review" }
func (f *AccessReview) Description() string {
	return "Decide pending certification items"
}

func (f *AccessReview) RequiredCapability() string { return "SailSetuAccessReview" }

func (f *AccessReview) Select(ctx context.Context, turn *bot.Turn) error {
	res, err := turn.Backend.LaunchWorkflow(ctx, PendingCertificationsWorkflow, nil)
	if err != nil {
		return err
	}
	var reviews []reviewRef
	if err := res.JSONAttr("reviews", &reviews); err != nil || len(reviews) == 0 {
		turn.Reset()
		return turn.Reply(ctx, "No pending access reviews.")
	}
	turn.Session.State = &reviewState{step: reviewStepPickReview, reviews: reviews}
	return turn.SendChoice(ctx, "Pending access reviews: pick one", reviewNames(reviews))
}

func (f *AccessReview) Handle(ctx context.Context, turn *bot.Turn, text string) error {
	st, ok := turn.Session.State.(*reviewState)
	if !ok {
		return f.Select(ctx, turn)
	}

	switch st.step {
	case reviewStepPickReview:
		i := choiceIndex(text, reviewNames(st.reviews))
		if i < 0 {
			return turn.Reply(ctx, "Invalid selection. Reply with the number of a review.")
		}
		st.review = st.reviews[i]
		return f.presentItems(ctx, turn, st)

	case reviewStepPickItem:
		options := f.itemOptions(st)
		i := choiceIndex(text, options)
		switch {
		case i < 0:
			return turn.Reply(ctx, "Invalid selection. Pick an item, Sign off, or Done.")
		case options[i] == itemOptionDone:
			turn.Reset()
			return turn.Reply(ctx, "OK, leaving access reviews.")
		case options[i] == itemOptionSignOff:
			if _, err := turn.Backend.LaunchWorkflow(ctx, SignOffWorkflow, map[string]string{
				"certificationId": st.review.ID,
			}); err != nil {
				return err
			}
			summary := fmt.Sprintf("✅ Signed off %s.", st.review.Name)
			turn.Reset()
			return turn.Reply(ctx, summary)
		default:
			st.item = st.items[i]
			st.step = reviewStepDecide
			return turn.SendChoice(ctx, fmt.Sprintf("Decision for %s", st.item.Description), decisionOptions)
		}

	case reviewStepDecide:
		i := choiceIndex(text, decisionOptions)
		if i < 0 {
			return turn.Reply(ctx, "Reply Approve, Revoke, or Cancel.")
		}
		decision := decisionOptions[i]
		if decision == "Cancel" {
			// Back to the item list, not out of the review.
			return f.presentItems(ctx, turn, st)
		}
		if _, err := turn.Backend.LaunchWorkflow(ctx, DecideItemWorkflow, map[string]string{
			"certificationId": st.review.ID,
			"itemId":          st.item.ID,
			"decision":        strings.ToLower(decision),
		}); err != nil {
			return err
		}
		if err := turn.Replyf(ctx, "✅ %s recorded for %s.", decision, st.item.Description); err != nil {
			return err
		}
		// Loop: refresh the items so repeated decisions stay in one visit.
		return f.presentItems(ctx, turn, st)

	default:
		return f.Select(ctx, turn)
	}
}

func (f *AccessReview) presentItems(ctx context.Context, turn *bot.Turn, st *reviewState) error {
	res, err := turn.Backend.LaunchWorkflow(ctx, CertificationItemsWorkflow, map[string]string{
		"certificationId": st.review.ID,
	})
	if err != nil {
		return err
	}
	var items []itemRef
	_ = res.JSONAttr("items", &items)
	st.items = items
	st.step = reviewStepPickItem

	title := fmt.Sprintf("Items in %s: pick one, or Sign off / Done", st.review.Name)
	if len(items) == 0 {
		title = fmt.Sprintf("Nothing left to decide in %s: Sign off or Done", st.review.Name)
	}
	return turn.SendChoice(ctx, title, f.itemOptions(st))
}

func (f *AccessReview) itemOptions(st *reviewState) []string {
	options := make([]string, 0, len(st.items)+2)
	for _, it := range st.items {
		options = append(options, it.Description)
	}
	return append(options, itemOptionSignOff, itemOptionDone)
}

func reviewNames(reviews []reviewRef) []string {
	names := make([]string, len(reviews))
	for i, r := range reviews {
		names[i] = r.Name
	}
	return names
}
