package fault_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bmops/provisioner/pkg/fault"
)

func TestKindOf(t *testing.T) {
	err := fault.New(fault.Spawn, "cannot launch %s", "esxcli")
	kind, ok := fault.KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, fault.Spawn, kind)

	_, ok = fault.KindOf(errors.New("plain"))
	assert.False(t, ok)
}

func TestKindSurvivesWrapping(t *testing.T) {
	inner := fault.New(fault.Timeout, "deadline hit")
	outer := fmt.Errorf("resolving route: %w", inner)

	kind, ok := fault.KindOf(outer)
	assert.True(t, ok)
	assert.Equal(t, fault.Timeout, kind)
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("no such file")
	err := fault.Wrap(fault.Spawn, cause, "cannot launch ip")
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "spawn")
	assert.Contains(t, err.Error(), "no such file")
}

func TestIsAny(t *testing.T) {
	err := fault.New(fault.RouteNotFound, "no src token")

	assert.True(t, fault.IsAny(err, fault.RouteNotFound))
	assert.True(t, fault.IsAny(err, fault.Timeout, fault.RouteNotFound))
	assert.False(t, fault.IsAny(err, fault.Timeout))
	// an empty allow-list never matches
	assert.False(t, fault.IsAny(err))
	assert.False(t, fault.IsAny(errors.New("plain"), fault.RouteNotFound))
}
