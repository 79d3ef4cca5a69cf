package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"tangled.org/arabica.social/sanctions/internal/moderation"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		// Known routes
		{"/healthz", "/healthz"},
		{"/metrics", "/metrics"},
		{"/admin/moderation", "/admin/moderation"},
		{"/admin/audit", "/admin/audit"},
		{"/admin/stats", "/admin/stats"},

		// Sanction history
		{"/admin/moderation/bob/sanctions", "/admin/moderation/:username/sanctions"},
		{"/admin/moderation/someone_else/sanctions", "/admin/moderation/:username/sanctions"},

		// Everything else shares one label
		{"/", RouteOther},
		{"/admin/moderation/bob", RouteOther},
		{"/admin/moderation/a/b/c", RouteOther},
		{"/wp-login.php", RouteOther},
		{"/random/8f14e45fceea167a", RouteOther},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizePath(tt.input))
		})
	}
}

func TestActionLabel(t *testing.T) {
	for _, a := range moderation.Actions() {
		assert.Equal(t, a.String(), ActionLabel(a.Code()))
	}
	assert.Equal(t, "warn", ActionLabel(" 1 "))
	assert.Equal(t, LabelInvalid, ActionLabel("drop table"))
	assert.Equal(t, LabelInvalid, ActionLabel(""))
}

func TestCollect(t *testing.T) {
	ctx := context.Background()

	collect(ctx, StatsSource{ActiveSanctionCount: func(context.Context) (int, error) { return 7, nil }})
	assert.Equal(t, float64(7), testutil.ToFloat64(ActiveSanctionsTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(StoreUp))

	// A failed read keeps the last value and flags the store.
	collect(ctx, StatsSource{ActiveSanctionCount: func(context.Context) (int, error) { return 0, errors.New("locked") }})
	assert.Equal(t, float64(7), testutil.ToFloat64(ActiveSanctionsTotal))
	assert.Equal(t, float64(0), testutil.ToFloat64(StoreUp))
}

func TestRunCollectorStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := make(chan struct{}, 16)
	src := StatsSource{ActiveSanctionCount: func(context.Context) (int, error) {
		select {
		case calls <- struct{}{}:
		default:
		}
		return 3, nil
	}}

	done := make(chan error, 1)
	go func() { done <- RunCollector(ctx, src, 5*time.Millisecond) }()

	<-calls
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("collector did not stop")
	}
	assert.Equal(t, float64(3), testutil.ToFloat64(ActiveSanctionsTotal))
}
