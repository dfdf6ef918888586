package bot

import "fmt"

// StepKind is the top-level position of a session in the dialog.
type StepKind int

const (
	// StepIdle is a fresh or reset session; the next message shows the menu.
	StepIdle StepKind = iota
	// StepMenu means a menu has been sent and the engine is awaiting a choice.
	StepMenu
	// StepFeature means a feature owns the session.
	StepFeature
)

// Step is the session's current position in the top-level dialog. A
// StepFeature must name a feature registered at dispatch time; a dangling
// reference is detected by the engine and resets the session in the same
// turn.
type Step struct {
	Kind      StepKind
	FeatureID string
}

func IdleStep() Step { return Step{Kind: StepIdle} }
func MenuStep() Step { return Step{Kind: StepMenu} }
func FeatureStep(id string) Step {
	return Step{Kind: StepFeature, FeatureID: id}
}

func (s Step) String() string {
	switch s.Kind {
	case StepIdle:
		return "idle"
	case StepMenu:
		return "menu"
	case StepFeature:
		return fmt.Sprintf("feature:%s", s.FeatureID)
	default:
		return fmt.Sprintf("unknown(%d)", int(s.Kind))
	}
}
