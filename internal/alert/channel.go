package alert

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/mozilla-ai/healthd/internal/domain"
)

const (
	KindFired     Kind = "fired"
	KindRepeated  Kind = "repeated"
	KindEscalated Kind = "escalated"
	KindResolved  Kind = "resolved"
)

// Kind says why a Notification is being sent.
type Kind string

// Notification is what channels deliver.
type Notification struct {
	Kind  Kind         `json:"kind"`
	Alert domain.Alert `json:"alert"`
}

// Channel delivers notifications to one destination.
type Channel interface {
	// Name identifies the channel in logs and delivery errors.
	Name() string

	// Send delivers n. It must honor ctx.
	Send(ctx context.Context, n Notification) error
}

// Subject is a one-line summary of the notification.
func (n Notification) Subject() string {
	prefix := strings.ToUpper(n.Alert.Severity.String())
	switch n.Kind {
	case KindEscalated:
		prefix = "ESCALATED " + prefix
	case KindResolved:
		prefix = "RESOLVED"
	}
	return fmt.Sprintf("[%s] %s: %s", prefix, n.Alert.ComponentID, n.Alert.Message)
}

// Body is a multi-line rendering of the notification.
func (n Notification) Body() string {
	var b strings.Builder
	b.WriteString(n.Subject())
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "alert: %s\n", n.Alert.ID)
	fmt.Fprintf(&b, "state: %s\n", n.Alert.State)
	fmt.Fprintf(&b, "raised: %s\n", n.Alert.CreatedAt.Format(time.RFC3339))
	if n.Alert.SuppressedCount > 0 {
		fmt.Fprintf(&b, "suppressed repeats: %d\n", n.Alert.SuppressedCount)
	}
	for _, k := range slices.Sorted(maps.Keys(n.Alert.Context)) {
		fmt.Fprintf(&b, "%s: %s\n", k, n.Alert.Context[k])
	}
	return b.String()
}

// ConsoleChannel writes a line per notification to a writer, typically stdout.
type ConsoleChannel struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsoleChannel creates a channel writing to w.
func NewConsoleChannel(w io.Writer) (*ConsoleChannel, error) {
	if w == nil {
		return nil, fmt.Errorf("console writer cannot be nil")
	}
	return &ConsoleChannel{w: w}, nil
}

// Name implements Channel.
func (c *ConsoleChannel) Name() string {
	return "console"
}

// Send implements Channel.
func (c *ConsoleChannel) Send(_ context.Context, n Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := fmt.Fprintf(c.w, "%s %s\n", time.Now().UTC().Format(time.RFC3339), n.Subject())
	return err
}

// LogChannel emits notifications through the application logger.
type LogChannel struct {
	logger hclog.Logger
}

// NewLogChannel creates a channel logging to logger.
func NewLogChannel(logger hclog.Logger) (*LogChannel, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	return &LogChannel{logger: logger.Named("alerts")}, nil
}

// Name implements Channel.
func (c *LogChannel) Name() string {
	return "log"
}

// Send implements Channel.
func (c *LogChannel) Send(_ context.Context, n Notification) error {
	level := hclog.Warn
	switch {
	case n.Kind == KindResolved:
		level = hclog.Info
	case n.Alert.Severity >= domain.StatusCritical:
		level = hclog.Error
	}

	c.logger.Log(
		level,
		n.Subject(),
		"alert", n.Alert.ID,
		"kind", n.Kind,
		"component", n.Alert.ComponentID,
		"severity", n.Alert.Severity,
		"suppressed", n.Alert.SuppressedCount,
	)
	return nil
}
