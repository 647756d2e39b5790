package domain

import (
	"encoding/json"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"
)

func components(statuses ...Status) []ComponentHealth {
	out := make([]ComponentHealth, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, ComponentHealth{Status: s})
	}
	return out
}

func TestAggregationPolicy_Aggregate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		statuses   []Status
		expected   Status
		criticalR  float64
		warningR   float64
		useDefault bool
	}{
		{name: "no components", statuses: nil, expected: StatusHealthy, useDefault: true},
		{name: "all healthy", statuses: []Status{StatusHealthy, StatusHealthy}, expected: StatusHealthy, useDefault: true},
		{
			name:       "single down taints the system",
			statuses:   []Status{StatusDown, StatusHealthy, StatusHealthy, StatusHealthy, StatusHealthy},
			expected:   StatusCritical,
			useDefault: true,
		},
		{
			name:       "one of five critical is a warning",
			statuses:   []Status{StatusCritical, StatusHealthy, StatusHealthy, StatusHealthy, StatusHealthy},
			expected:   StatusWarning,
			useDefault: true,
		},
		{
			name:       "two of five critical is critical",
			statuses:   []Status{StatusCritical, StatusCritical, StatusHealthy, StatusHealthy, StatusHealthy},
			expected:   StatusCritical,
			useDefault: true,
		},
		{
			name:       "minority of warnings stays healthy",
			statuses:   []Status{StatusWarning, StatusWarning, StatusHealthy, StatusHealthy, StatusHealthy},
			expected:   StatusHealthy,
			useDefault: true,
		},
		{
			name:       "majority of warnings is a warning",
			statuses:   []Status{StatusWarning, StatusWarning, StatusWarning, StatusHealthy, StatusHealthy},
			expected:   StatusWarning,
			useDefault: true,
		},
		{
			name:      "stricter custom ratios",
			statuses:  []Status{StatusWarning, StatusHealthy, StatusHealthy, StatusHealthy},
			expected:  StatusWarning,
			criticalR: 0.1,
			warningR:  0.2,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			policy := AggregationPolicy{CriticalRatio: tc.criticalR, WarningRatio: tc.warningR}
			if tc.useDefault {
				policy = DefaultAggregationPolicy()
			}
			require.Equal(t, tc.expected, policy.Aggregate(Count(components(tc.statuses...))))
		})
	}
}

func TestAggregationPolicy_Properties(t *testing.T) {
	t.Parallel()

	r := rand.New(rand.NewPCG(3, 9))
	policy := DefaultAggregationPolicy()
	all := AllStatuses()

	for range 500 {
		n := 1 + r.IntN(20)
		statuses := make([]Status, n)
		for i := range statuses {
			statuses[i] = all[r.IntN(len(all))]
		}
		stats := Count(components(statuses...))
		got := policy.Aggregate(stats)

		if stats.Down > 0 {
			require.Equal(t, StatusCritical, got)
		}
		if stats.Down == 0 && stats.Critical == 0 && stats.Warning == 0 {
			require.Equal(t, StatusHealthy, got)
		}
		require.NotEqual(t, StatusDown, got)
	}
}

func TestComponentHealth_MetricsStatus(t *testing.T) {
	t.Parallel()

	c := ComponentHealth{
		Metrics: []Metric{
			NewMetric("a", 1, "ms", Threshold{Warning: 5, Critical: 10}),
			NewMetric("b", 7, "ms", Threshold{Warning: 5, Critical: 10}),
		},
	}
	require.Equal(t, StatusWarning, c.MetricsStatus())

	m, ok := c.Metric("b")
	require.True(t, ok)
	require.Equal(t, 7.0, m.Value)

	_, ok = c.Metric("missing")
	require.False(t, ok)
}

func TestComponentHealth_CloneIsIndependent(t *testing.T) {
	t.Parallel()

	c := ComponentHealth{Metrics: []Metric{{Name: "a"}}}
	clone := c.Clone()
	clone.Metrics[0].Name = "changed"
	require.Equal(t, "a", c.Metrics[0].Name)
}

func TestSystemHealth_SortedIsStable(t *testing.T) {
	t.Parallel()

	sh := &SystemHealth{Components: map[string]ComponentHealth{
		"db":    {ID: "db"},
		"api":   {ID: "api"},
		"cache": {ID: "cache"},
	}}

	require.Equal(t, []string{"api", "cache", "db"}, sh.ComponentIDs())
	sorted := sh.Sorted()
	require.Len(t, sorted, 3)
	require.Equal(t, "api", sorted[0].ID)
}

func TestStatus_TextRoundTrip(t *testing.T) {
	t.Parallel()

	for _, s := range AllStatuses() {
		b, err := json.Marshal(s)
		require.NoError(t, err)

		var got Status
		require.NoError(t, json.Unmarshal(b, &got))
		require.Equal(t, s, got)
	}

	_, err := ParseStatus("meh")
	require.Error(t, err)
	require.True(t, StatusDown.WorseThan(StatusCritical))
	require.Equal(t, StatusCritical, Worst(StatusWarning, StatusCritical, StatusHealthy))
}
