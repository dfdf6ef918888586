package features

import (
	"context"
	"fmt"
	"time"

	"github.com/sailsetu/sailsetu/bot"
)

// SystemStatus reports gateway health. It is the one feature that works
// without backend configuration.
type SystemStatus struct {
	version   string
	startedAt time.Time
}

func NewSystemStatus(version string) *SystemStatus {
	return &SystemStatus{version: version, startedAt: time.Now()}
}

func (f *SystemStatus) ID() string          { return "system-status" }
func (f *SystemStatus) Name() string        { return "System status" }
func (f *SystemStatus) Description() string { return "Show gateway health and configuration state" }

func (f *SystemStatus) RequiredCapability() string { return "" }

func (f *SystemStatus) Select(ctx context.Context, turn *bot.Turn) error {
	backend := "not configured"
	if turn.Backend != nil {
		backend = "configured"
	}
	uptime := time.Since(f.startedAt).Round(time.Second)
	msg := fmt.Sprintf("SailSetu gateway %s\nUptime: %s\nChannel: %s\nBackend: %s",
		f.version, uptime, turn.Channel, backend)
	if err := turn.Reply(ctx, msg); err != nil {
		return err
	}
	// One-shot: nothing to collect, straight back to the menu.
	turn.Reset()
	return nil
}

func (f *SystemStatus) Handle(ctx context.Context, turn *bot.Turn, text string) error {
	return f.Select(ctx, turn)
}
