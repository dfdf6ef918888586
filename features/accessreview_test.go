package features

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sailsetu/sailsetu/bot"
	"github.com/sailsetu/sailsetu/iiq"
)

func reviewLauncher(t *testing.T) *fakeLauncher {
	l := &fakeLauncher{}
	l.handler = func(name string, input map[string]string) (*iiq.LaunchResult, error) {
		switch name {
		case PendingCertificationsWorkflow:
			return result(t, map[string]any{
				"reviews": []reviewRef{{ID: "cert-1", Name: "Q3 app review"}},
			}), nil
		case CertificationItemsWorkflow:
			return result(t, map[string]any{
				"items": []itemRef{
					{ID: "item-1", Description: "alice: AD group Admins"},
					{ID: "item-2", Description: "bob: SAP role AP_CLERK"},
				},
			}), nil
		case DecideItemWorkflow, SignOffWorkflow:
			return result(t, nil), nil
		default:
			return nil, fmt.Errorf("unexpected workflow %s", name)
		}
	}
	return l
}

func TestAccessReviewDecisionLoopsBackToItems(t *testing.T) {
	l := reviewLauncher(t)
	e, tr := newHarness(t, NewAccessReview(), l)

	send(t, e, "1") // pick the review
	send(t, e, "1") // pick the first item
	send(t, e, "Approve")

	if n := l.count(DecideItemWorkflow); n != 1 {
		t.Fatalf("expected one decision call, got %d", n)
	}
	last := l.calls[len(l.calls)-2] // decision precedes the item refresh
	if last.Name != DecideItemWorkflow || last.Input["decision"] != "approve" || last.Input["itemId"] != "item-1" {
		t.Fatalf("decision call mismatch: %+v", last)
	}
	// After a decision the item list is refreshed and offered again.
	if n := l.count(CertificationItemsWorkflow); n != 2 {
		t.Fatalf("expected item refresh after a decision, got %d fetches", n)
	}
	prompt := tr.lastPrompt(t)
	if !strings.Contains(prompt.Title, "Q3 app review") {
		t.Fatalf("expected item prompt for the same review, got %+v", prompt)
	}
	sess := session(t, e)
	if sess.Step.Kind != bot.StepFeature {
		t.Fatalf("review visit should continue after one decision, got %s", sess.Step)
	}
}

func TestAccessReviewCancelReturnsToItemList(t *testing.T) {
	l := reviewLauncher(t)
	e, tr := newHarness(t, NewAccessReview(), l)

	send(t, e, "1")
	send(t, e, "2") // pick the second item
	send(t, e, "Cancel")

	if n := l.count(DecideItemWorkflow); n != 0 {
		t.Fatalf("cancel must record no decision, got %d calls", n)
	}
	prompt := tr.lastPrompt(t)
	if len(prompt.Options) != 4 { // two items + Sign off + Done
		t.Fatalf("expected the item list again, got %+v", prompt)
	}
}

func TestAccessReviewDoneExits(t *testing.T) {
	l := reviewLauncher(t)
	e, tr := newHarness(t, NewAccessReview(), l)

	send(t, e, "1")
	send(t, e, "Done")

	if session(t, e).Step.Kind != bot.StepIdle {
		t.Fatalf("Done should leave the review")
	}
	if !strings.Contains(tr.lastReply(t), "leaving access reviews") {
		t.Fatalf("expected exit reply, got %q", tr.lastReply(t))
	}
}

func TestAccessReviewSignOff(t *testing.T) {
	l := reviewLauncher(t)
	e, tr := newHarness(t, NewAccessReview(), l)

	send(t, e, "1")
	send(t, e, "Sign off")

	if n := l.count(SignOffWorkflow); n != 1 {
		t.Fatalf("expected one sign-off call, got %d", n)
	}
	if !strings.Contains(tr.lastReply(t), "Signed off Q3 app review") {
		t.Fatalf("expected sign-off summary, got %q", tr.lastReply(t))
	}
	if session(t, e).Step.Kind != bot.StepIdle {
		t.Fatalf("sign-off should end the visit")
	}
}

func TestAccessReviewNoPendingReviews(t *testing.T) {
	l := &fakeLauncher{}
	l.handler = func(name string, input map[string]string) (*iiq.LaunchResult, error) {
		return result(t, map[string]any{"reviews": []reviewRef{}}), nil
	}
	e, tr := newHarness(t, NewAccessReview(), l)

	if tr.lastReply(t) != "No pending access reviews." {
		t.Fatalf("expected empty reply, got %q", tr.lastReply(t))
	}
	if session(t, e).Step.Kind != bot.StepIdle {
		t.Fatalf("session should be idle when nothing is pending")
	}
}
