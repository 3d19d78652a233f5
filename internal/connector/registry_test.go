package connector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopFeature struct{}

func (nopFeature) Calculate(ctx context.Context, req FeatureRequest) ([]FeatureResult, error) {
	return nil, nil
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()

	factory := func() (Feature, error) { return nopFeature{}, nil }
	require.NoError(t, r.RegisterFeature("sma", factory))
	err := r.RegisterFeature("sma", factory)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestRegistryRejectsEmptyName(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.RegisterFeature("", func() (Feature, error) { return nopFeature{}, nil }))
	assert.Error(t, r.RegisterSource("x", nil))
}

func TestRegistryUnknownName(t *testing.T) {
	r := NewRegistry()

	_, err := r.Source("nope", nil)
	assert.ErrorIs(t, err, ErrNotRegistered)

	_, err = r.Feature("nope")
	assert.ErrorIs(t, err, ErrNotRegistered)
}

func TestRegistrySourceFactoryReceivesParams(t *testing.T) {
	r := NewRegistry()
	var seen map[string]any
	require.NoError(t, r.RegisterSource("probe", func(params map[string]any) (Source, error) {
		seen = params
		return nil, &ParamError{Key: "token", Reason: "missing"}
	}))

	_, err := r.Source("probe", map[string]any{"token": nil})
	var paramErr *ParamError
	require.ErrorAs(t, err, &paramErr)
	assert.Equal(t, "token", paramErr.Key)
	assert.Contains(t, seen, "token")
}

func TestRegistryNames(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterFeature("a", func() (Feature, error) { return nopFeature{}, nil }))
	require.NoError(t, r.RegisterFeature("b", func() (Feature, error) { return nopFeature{}, nil }))

	assert.ElementsMatch(t, []string{"a", "b"}, r.FeatureNames())
	assert.Empty(t, r.SourceNames())
}
