package notify

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	logx "daywatch/pkg/logx"
)

// desktopTimeout bounds the notify-send subprocess so a wedged desktop bus
// cannot stall the dispatching job.
const desktopTimeout = 5 * time.Second

type DesktopConfig struct {
	Enabled bool
	AppName string
}

// DesktopChannel delivers banners through notify-send (libnotify).
type DesktopChannel struct {
	cfg DesktopConfig
	log logx.Logger
}

func NewDesktopChannel(cfg DesktopConfig, log logx.Logger) *DesktopChannel {
	if cfg.AppName == "" {
		cfg.AppName = "daywatch"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Enabled {
		if _, err := exec.LookPath("notify-send"); err != nil {
			log.Warn("notify-send not found; desktop notifications may not work")
		}
	}
	return &DesktopChannel{cfg: cfg, log: log}
}

func (c *DesktopChannel) Name() string  { return "desktop" }
func (c *DesktopChannel) Enabled() bool { return c.cfg.Enabled }

func (c *DesktopChannel) Send(ctx context.Context, title, message string, prio Priority) error {
	ctx, cancel := context.WithTimeout(ctx, desktopTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "notify-send",
		"--app-name", c.cfg.AppName,
		"--urgency", urgency(prio),
		"--icon", "dialog-information",
		title, message)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("notify-send timed out after %s", desktopTimeout)
		}
		return fmt.Errorf("notify-send: %w (%s)", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// urgency maps notification priority onto notify-send's three levels.
func urgency(p Priority) string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityCritical:
		return "critical"
	default:
		return "normal"
	}
}
