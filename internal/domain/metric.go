package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	// HigherIsWorse breaches when the value rises to or above a threshold (latency, CPU%).
	HigherIsWorse Direction = iota

	// LowerIsWorse breaches when the value falls to or below a threshold (free disk%, availability%).
	LowerIsWorse
)

// ErrInvalidThreshold is returned when a Threshold cannot produce a well-ordered status mapping.
var ErrInvalidThreshold = errors.New("invalid threshold")

// Direction states which way a metric value moves when it gets worse.
type Direction int

// Threshold holds the warning and critical bounds of a metric together with its breach direction.
type Threshold struct {
	Warning   float64   `json:"warning"   yaml:"warning"`
	Critical  float64   `json:"critical"  yaml:"critical"`
	Direction Direction `json:"direction" yaml:"direction"`
}

// Metric is a single measured value.
// Status is derived from Value and Threshold when the Metric is constructed and is never changed afterward.
// Metrics should be created with NewMetric.
type Metric struct {
	Name      string    `json:"name"      yaml:"name"`
	Value     float64   `json:"value"     yaml:"value"`
	Unit      string    `json:"unit"      yaml:"unit"`
	Status    Status    `json:"status"    yaml:"status"`
	Threshold Threshold `json:"threshold" yaml:"threshold"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// ParseDirection converts a textual direction into a Direction.
// Accepted values are "higher_is_worse" (default when empty) and "lower_is_worse".
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "higher_is_worse", "higher":
		return HigherIsWorse, nil
	case "lower_is_worse", "lower":
		return LowerIsWorse, nil
	default:
		return HigherIsWorse, fmt.Errorf("unknown threshold direction: %s", s)
	}
}

func (d Direction) String() string {
	if d == LowerIsWorse {
		return "lower_is_worse"
	}
	return "higher_is_worse"
}

// MarshalText implements encoding.TextMarshaler.
func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Direction) UnmarshalText(text []byte) error {
	parsed, err := ParseDirection(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Validate ensures the bounds are finite and ordered for the breach direction.
func (t Threshold) Validate() error {
	if math.IsNaN(t.Warning) || math.IsInf(t.Warning, 0) || math.IsNaN(t.Critical) || math.IsInf(t.Critical, 0) {
		return fmt.Errorf("%w: bounds must be finite numbers", ErrInvalidThreshold)
	}

	switch t.Direction {
	case HigherIsWorse:
		if t.Warning > t.Critical {
			return fmt.Errorf(
				"%w: warning (%v) must not exceed critical (%v) when higher is worse",
				ErrInvalidThreshold, t.Warning, t.Critical,
			)
		}
	case LowerIsWorse:
		if t.Warning < t.Critical {
			return fmt.Errorf(
				"%w: warning (%v) must not be below critical (%v) when lower is worse",
				ErrInvalidThreshold, t.Warning, t.Critical,
			)
		}
	default:
		return fmt.Errorf("%w: unknown direction %d", ErrInvalidThreshold, int(t.Direction))
	}

	return nil
}

// Evaluate maps a value onto a Status.
// StatusDown is never returned; it is reserved for probes that could not measure anything.
// A NaN value cannot be compared against the bounds and is treated as critical.
func (t Threshold) Evaluate(value float64) Status {
	if math.IsNaN(value) {
		return StatusCritical
	}

	if t.Direction == LowerIsWorse {
		switch {
		case value <= t.Critical:
			return StatusCritical
		case value <= t.Warning:
			return StatusWarning
		default:
			return StatusHealthy
		}
	}

	switch {
	case value >= t.Critical:
		return StatusCritical
	case value >= t.Warning:
		return StatusWarning
	default:
		return StatusHealthy
	}
}

// NewMetric creates a Metric whose status is derived from value and threshold.
func NewMetric(name string, value float64, unit string, threshold Threshold) Metric {
	return Metric{
		Name:      name,
		Value:     value,
		Unit:      unit,
		Status:    threshold.Evaluate(value),
		Threshold: threshold,
		Timestamp: time.Now().UTC(),
	}
}
