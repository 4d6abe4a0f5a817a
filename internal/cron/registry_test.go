package cron

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryKeepsRegistrationOrder(t *testing.T) {
	registry := NewRegistry(&stubJob{name: "invoice-reconcile"})
	require.NoError(t, registry.Register(nil))
	require.NoError(t, registry.Register(&stubJob{name: "invoice-local-expiry"}))

	assert.Equal(t, []string{"invoice-reconcile", "invoice-local-expiry"}, registry.Names())

	jobs := registry.Jobs()
	jobs[0] = nil
	assert.NotNil(t, registry.Jobs()[0], "internal slice leaked")

	job, ok := registry.Lookup("invoice-local-expiry")
	require.True(t, ok)
	assert.Equal(t, "invoice-local-expiry", job.Name())
	_, ok = registry.Lookup("outbox-retention")
	assert.False(t, ok)
}

func TestRegistryRejectsBadNames(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(&stubJob{name: "outbox-retention"}))
	assert.Error(t, registry.Register(&stubJob{name: "outbox-retention"}))
	assert.Error(t, registry.Register(&stubJob{name: "  "}))
	assert.Len(t, registry.Jobs(), 1)

	assert.Panics(t, func() {
		NewRegistry(&stubJob{name: "invoice-retention"}, &stubJob{name: "invoice-retention"})
	})
}
