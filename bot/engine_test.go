package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/sailsetu/sailsetu/iiq"
)

type sentPrompt struct {
	Title   string
	Options []string
}

type fakeTransport struct {
	replies   []string
	prompts   []sentPrompt
	promptErr error
}

func (t *fakeTransport) Reply(ctx context.Context, userKey, text string) error {
	t.replies = append(t.replies, text)
	return nil
}

func (t *fakeTransport) SendChoicePrompt(ctx context.Context, userKey, title string, options []string) error {
	if t.promptErr != nil {
		return t.promptErr
	}
	t.prompts = append(t.prompts, sentPrompt{Title: title, Options: options})
	return nil
}

func (t *fakeTransport) lastReply(tb testing.TB) string {
	tb.Helper()
	if len(t.replies) == 0 {
		tb.Fatalf("expected at least one reply, got none")
	}
	return t.replies[len(t.replies)-1]
}

type fakeFeature struct {
	id       string
	name     string
	cap      string
	selected int
	handled  []string
	selectFn func(ctx context.Context, turn *Turn) error
	handleFn func(ctx context.Context, turn *Turn, text string) error
}

func (f *fakeFeature) ID() string                 { return f.id }
func (f *fakeFeature) Name() string               { return f.name }
func (f *fakeFeature) Description() string        { return f.name }
func (f *fakeFeature) RequiredCapability() string { return f.cap }

func (f *fakeFeature) Select(ctx context.Context, turn *Turn) error {
	f.selected++
	if f.selectFn != nil {
		return f.selectFn(ctx, turn)
	}
	return turn.Reply(ctx, "entered "+f.id)
}

func (f *fakeFeature) Handle(ctx context.Context, turn *Turn, text string) error {
	f.handled = append(f.handled, text)
	if f.handleFn != nil {
		return f.handleFn(ctx, turn, text)
	}
	return nil
}

// launcherFunc adapts a function to iiq.Launcher.
type launcherFunc func(ctx context.Context, name string, input map[string]string) (*iiq.LaunchResult, error)

func (f launcherFunc) LaunchWorkflow(ctx context.Context, name string, input map[string]string) (*iiq.LaunchResult, error) {
	return f(ctx, name, input)
}

func mustRegistry(t *testing.T, features ...Feature) *Registry {
	t.Helper()
	reg := NewRegistry()
	for _, f := range features {
		if err := reg.Register(f); err != nil {
			t.Fatalf("register %s: %v", f.ID(), err)
		}
	}
	return reg
}

func newTestEngine(t *testing.T, tr *fakeTransport, features ...Feature) *Engine {
	t.Helper()
	return New(Options{
		Channel:   "test",
		Registry:  mustRegistry(t, features...),
		Transport: tr,
		Backend: launcherFunc(func(ctx context.Context, name string, input map[string]string) (*iiq.LaunchResult, error) {
			return nil, errors.New("no backend in this test")
		}),
	})
}

func TestMenuFiltersByCapability(t *testing.T) {
	open := &fakeFeature{id: "open", name: "Open"}
	anyID := &fakeFeature{id: "any", name: "Any", cap: CapabilityAnyIdentified}
	gated := &fakeFeature{id: "gated", name: "Gated", cap: "SailSetuGated"}
	other := &fakeFeature{id: "other", name: "Other", cap: "SailSetuOther"}

	tr := &fakeTransport{}
	e := newTestEngine(t, tr, open, anyID, gated, other)

	sess, _ := e.Sessions().GetOrCreate("u1")
	sess.Identity = &Identity{Name: "alice", Capabilities: []string{"SailSetuGated"}}

	if err := e.ShowMenu(context.Background(), "u1"); err != nil {
		t.Fatalf("ShowMenu: %v", err)
	}
	if len(tr.prompts) != 1 {
		t.Fatalf("expected 1 prompt, got %d", len(tr.prompts))
	}
	got := tr.prompts[0].Options
	want := []string{"Open", "Any", "Gated"}
	if len(got) != len(want) {
		t.Fatalf("menu options = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("menu options = %v, want %v", got, want)
		}
	}
}

func TestMenuMasterCapabilityUnlocksEverything(t *testing.T) {
	gated := &fakeFeature{id: "gated", name: "Gated", cap: "SailSetuGated"}
	other := &fakeFeature{id: "other", name: "Other", cap: "SailSetuOther"}

	tr := &fakeTransport{}
	e := newTestEngine(t, tr, gated, other)

	sess, _ := e.Sessions().GetOrCreate("u1")
	sess.Identity = &Identity{Name: "root", Capabilities: []string{MasterCapability}}

	if err := e.ShowMenu(context.Background(), "u1"); err != nil {
		t.Fatalf("ShowMenu: %v", err)
	}
	if len(tr.prompts) != 1 || len(tr.prompts[0].Options) != 2 {
		t.Fatalf("expected both features offered, got %+v", tr.prompts)
	}
}

func TestMenuAssumeMasterSkipsFilter(t *testing.T) {
	gated := &fakeFeature{id: "gated", name: "Gated", cap: "SailSetuGated"}
	tr := &fakeTransport{}
	e := New(Options{
		Channel:            "test",
		Registry:           mustRegistry(t, gated),
		Transport:          tr,
		AssumeMaster:       true,
		ConfigFreeFeatures: []string{"gated"},
	})

	if err := e.ShowMenu(context.Background(), "u1"); err != nil {
		t.Fatalf("ShowMenu: %v", err)
	}
	if len(tr.prompts) != 1 || len(tr.prompts[0].Options) != 1 {
		t.Fatalf("expected gated feature offered without identity, got %+v", tr.prompts)
	}
}

func TestMenuEmptyExplainsCapabilityConvention(t *testing.T) {
	gated := &fakeFeature{id: "gated", name: "Gated", cap: "SailSetuGated"}
	tr := &fakeTransport{}
	e := newTestEngine(t, tr, gated)

	if err := e.ShowMenu(context.Background(), "u1"); err != nil {
		t.Fatalf("ShowMenu: %v", err)
	}
	reply := tr.lastReply(t)
	if !strings.Contains(reply, "SailSetu") {
		t.Fatalf("empty-menu guidance should name the capability convention, got %q", reply)
	}
	sess, _ := e.Sessions().Get("u1")
	if sess.Step.Kind != StepIdle {
		t.Fatalf("empty menu should leave the session idle, got %s", sess.Step)
	}
}

func TestMenuSelectionByIndexAndName(t *testing.T) {
	a := &fakeFeature{id: "feat-a", name: "Feature A"}
	b := &fakeFeature{id: "feat-b", name: "Feature B"}
	tr := &fakeTransport{}
	e := newTestEngine(t, tr, a, b)
	ctx := context.Background()

	if err := e.ShowMenu(ctx, "u1"); err != nil {
		t.Fatalf("ShowMenu: %v", err)
	}
	if err := e.HandleText(ctx, "u1", "2"); err != nil {
		t.Fatalf("HandleText: %v", err)
	}
	if b.selected != 1 {
		t.Fatalf("expected Feature B selected once, got %d", b.selected)
	}

	if err := e.ShowMenu(ctx, "u1"); err != nil {
		t.Fatalf("ShowMenu: %v", err)
	}
	if err := e.HandleText(ctx, "u1", "feature a"); err != nil {
		t.Fatalf("HandleText: %v", err)
	}
	if a.selected != 1 {
		t.Fatalf("expected Feature A selected by name, got %d", a.selected)
	}
}

func TestMenuSelectionOutOfRangeStaysAtMenu(t *testing.T) {
	a := &fakeFeature{id: "feat-a", name: "Feature A"}
	tr := &fakeTransport{}
	e := newTestEngine(t, tr, a)
	ctx := context.Background()

	if err := e.ShowMenu(ctx, "u1"); err != nil {
		t.Fatalf("ShowMenu: %v", err)
	}
	for _, input := range []string{"0", "2", "nope"} {
		if err := e.HandleText(ctx, "u1", input); err != nil {
			t.Fatalf("HandleText(%q): %v", input, err)
		}
		if !strings.Contains(tr.lastReply(t), "Invalid selection") {
			t.Fatalf("input %q: expected invalid-selection reply, got %q", input, tr.lastReply(t))
		}
		sess, _ := e.Sessions().Get("u1")
		if sess.Step.Kind != StepMenu {
			t.Fatalf("input %q: step = %s, want menu", input, sess.Step)
		}
	}
	if a.selected != 0 {
		t.Fatalf("no feature should have been entered, got %d selections", a.selected)
	}
}

func TestAnyIdentifiedRequiresIdentityAtEntry(t *testing.T) {
	anyID := &fakeFeature{id: "any", name: "Any", cap: CapabilityAnyIdentified}
	tr := &fakeTransport{}
	e := newTestEngine(t, tr, anyID)
	ctx := context.Background()

	if err := e.ShowMenu(ctx, "u1"); err != nil {
		t.Fatalf("ShowMenu: %v", err)
	}
	if err := e.HandleText(ctx, "u1", "1"); err != nil {
		t.Fatalf("HandleText: %v", err)
	}
	if anyID.selected != 0 {
		t.Fatalf("feature should not be entered without an identity")
	}
	if !strings.Contains(tr.lastReply(t), "who you are") {
		t.Fatalf("expected identity guidance, got %q", tr.lastReply(t))
	}
}

func TestFeatureErrorResetsSessionAndReports(t *testing.T) {
	boom := &fakeFeature{
		id:   "boom",
		name: "Boom",
		handleFn: func(ctx context.Context, turn *Turn, text string) error {
			return fmt.Errorf("backend exploded")
		},
	}
	tr := &fakeTransport{}
	e := newTestEngine(t, tr, boom)
	ctx := context.Background()

	if err := e.ShowMenu(ctx, "u1"); err != nil {
		t.Fatalf("ShowMenu: %v", err)
	}
	if err := e.HandleText(ctx, "u1", "1"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := e.HandleText(ctx, "u1", "anything"); err != nil {
		t.Fatalf("handle: %v", err)
	}
	reply := tr.lastReply(t)
	if !strings.HasPrefix(reply, "❌ ") || !strings.Contains(reply, "backend exploded") {
		t.Fatalf("expected error reply with message, got %q", reply)
	}
	sess, _ := e.Sessions().Get("u1")
	if sess.Step.Kind != StepIdle || sess.State != nil {
		t.Fatalf("session should be reset after a feature error, step=%s state=%v", sess.Step, sess.State)
	}
}

func TestDanglingFeatureStepResets(t *testing.T) {
	tr := &fakeTransport{}
	e := newTestEngine(t, tr, &fakeFeature{id: "real", name: "Real"})
	ctx := context.Background()

	sess, _ := e.Sessions().GetOrCreate("u1")
	sess.Step = FeatureStep("gone")

	if err := e.HandleText(ctx, "u1", "hello"); err != nil {
		t.Fatalf("HandleText: %v", err)
	}
	if sess.Step.Kind != StepIdle {
		t.Fatalf("dangling feature step should reset to idle, got %s", sess.Step)
	}
	if !strings.Contains(tr.lastReply(t), "no longer available") {
		t.Fatalf("expected dangling-feature reply, got %q", tr.lastReply(t))
	}
}

func TestReentryClearsPreviousFeatureState(t *testing.T) {
	stateful := &fakeFeature{
		id:   "stateful",
		name: "Stateful",
		selectFn: func(ctx context.Context, turn *Turn) error {
			if turn.Session.State != nil {
				return fmt.Errorf("state not cleared on entry")
			}
			turn.Session.State = "dirty"
			return turn.Reply(ctx, "entered")
		},
	}
	tr := &fakeTransport{}
	e := newTestEngine(t, tr, stateful)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := e.ShowMenu(ctx, "u1"); err != nil {
			t.Fatalf("ShowMenu: %v", err)
		}
		if err := e.HandleText(ctx, "u1", "1"); err != nil {
			t.Fatalf("select round %d: %v", i, err)
		}
		if stateful.selected != i+1 {
			t.Fatalf("round %d: expected %d selections, got %d", i, i+1, stateful.selected)
		}
	}
}

func TestChoicePromptFallbackToNumberedList(t *testing.T) {
	a := &fakeFeature{id: "feat-a", name: "Feature A"}
	tr := &fakeTransport{promptErr: ErrChoicePromptUnsupported}
	e := newTestEngine(t, tr, a)

	if err := e.ShowMenu(context.Background(), "u1"); err != nil {
		t.Fatalf("ShowMenu: %v", err)
	}
	reply := tr.lastReply(t)
	if !strings.Contains(reply, "1. Feature A") {
		t.Fatalf("expected numbered fallback list, got %q", reply)
	}
	sess, _ := e.Sessions().Get("u1")
	if sess.Step.Kind != StepMenu {
		t.Fatalf("fallback menu should still move to the menu step, got %s", sess.Step)
	}
}

func TestMissingBackendBlocksFeatures(t *testing.T) {
	status := &fakeFeature{id: "system-status", name: "System status"}
	gated := &fakeFeature{id: "needs-backend", name: "Needs backend"}
	tr := &fakeTransport{}
	e := New(Options{
		Channel:            "test",
		Registry:           mustRegistry(t, status, gated),
		Transport:          tr,
		ConfigFreeFeatures: []string{"system-status"},
	})
	ctx := context.Background()

	if err := e.ShowMenu(ctx, "u1"); err != nil {
		t.Fatalf("ShowMenu: %v", err)
	}
	if err := e.HandleText(ctx, "u1", "2"); err != nil {
		t.Fatalf("HandleText: %v", err)
	}
	if gated.selected != 0 {
		t.Fatalf("backend feature should be blocked without configuration")
	}
	if !strings.Contains(tr.lastReply(t), "configuration is missing") {
		t.Fatalf("expected config-missing reply, got %q", tr.lastReply(t))
	}

	if err := e.ShowMenu(ctx, "u1"); err != nil {
		t.Fatalf("ShowMenu: %v", err)
	}
	if err := e.HandleText(ctx, "u1", "1"); err != nil {
		t.Fatalf("HandleText: %v", err)
	}
	if status.selected != 1 {
		t.Fatalf("config-free feature should stay enterable")
	}
}

func TestIdleMessageShowsMenu(t *testing.T) {
	a := &fakeFeature{id: "feat-a", name: "Feature A"}
	tr := &fakeTransport{}
	e := newTestEngine(t, tr, a)

	if err := e.HandleText(context.Background(), "u1", "whatever"); err != nil {
		t.Fatalf("HandleText: %v", err)
	}
	if len(tr.prompts) != 1 {
		t.Fatalf("first contact should present the menu, got %+v", tr.prompts)
	}
}
