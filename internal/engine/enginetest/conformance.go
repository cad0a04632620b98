// Package enginetest holds a conformance suite for engine.ControlPlane
// implementations.
package enginetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/picklr-io/provprobe/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Conformance verifies that cp implements the full lifecycle:
// Create -> Describe (found) -> Delete -> Describe (gone) -> Delete (not found).
func Conformance(t *testing.T, cp engine.ControlPlane, spec engine.ResourceSpec, name string) {
	t.Helper()
	ctx := context.Background()

	// 1. Create
	handle, err := cp.Create(ctx, engine.CreateRequest{Name: name, Spec: spec})
	require.NoError(t, err)
	require.NotEmpty(t, handle.String())

	// 2. Describe sees the resource
	status, err := cp.Describe(ctx, handle)
	require.NoError(t, err)
	assert.True(t, status.Found, "resource should be found after create")

	// 3. Delete
	require.NoError(t, cp.Delete(ctx, handle))

	// 4. Describe no longer finds it and does not fail
	status, err = cp.Describe(ctx, handle)
	require.NoError(t, err)
	assert.False(t, status.Found, "resource should be gone after delete")

	// 5. A second delete reports not found
	err = cp.Delete(ctx, handle)
	require.Error(t, err)
	assert.True(t, errors.Is(err, engine.ErrNotFound), "second delete should wrap engine.ErrNotFound, got %v", err)

	// 6. Unknown handles are reported as not found
	status, err = cp.Describe(ctx, engine.Handle(handle.String()+"-missing"))
	require.NoError(t, err)
	assert.False(t, status.Found)
}

// Lifecycle runs spec through a Controller with no waits between attempts and
// checks that the resource was deleted.
func Lifecycle(t *testing.T, cp engine.ControlPlane, spec engine.ResourceSpec, policy engine.Policy) *engine.Result {
	t.Helper()

	noWait := func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	result, err := engine.NewController(cp, engine.WithSleepFunc(noWait)).Run(context.Background(), spec, policy)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.Deleted, "resource should be deleted at the end of the lifecycle")
	return result
}
