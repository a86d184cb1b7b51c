package memstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	ctx := context.Background()
	s := New()

	a, err := s.CreateModel(ctx, "gpt")
	require.NoError(t, err)
	b, err := s.CreateModel(ctx, "lstm")
	require.NoError(t, err)

	assert.Equal(t, "0", a.ID)
	assert.Equal(t, "1", b.ID)
	assert.Equal(t, []string{}, a.Sources)

	got, err := s.GetModel(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "lstm", got.Name)

	missing, err := s.GetModel(ctx, "42")
	require.NoError(t, err)
	assert.Nil(t, missing)

	renamed, err := s.UpdateModelName(ctx, "0", "gpt-2")
	require.NoError(t, err)
	assert.Equal(t, "gpt-2", renamed.Name)

	renamed, err = s.UpdateModelName(ctx, "42", "x")
	require.NoError(t, err)
	assert.Nil(t, renamed)

	list, err := s.ListModels(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "0", list[0].ID)
	assert.Equal(t, "1", list[1].ID)

	ok, err := s.DeleteModel(ctx, "0")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.DeleteModel(ctx, "0")
	require.NoError(t, err)
	assert.False(t, ok)

	c, err := s.CreateModel(ctx, "new")
	require.NoError(t, err)
	assert.Equal(t, "2", c.ID, "ids are never reused")
}

func TestAppendModelSource(t *testing.T) {
	ctx := context.Background()
	s := New()
	m, err := s.CreateModel(ctx, "gpt")
	require.NoError(t, err)

	m, err = s.AppendModelSource(ctx, m.ID, "http://a")
	require.NoError(t, err)
	m, err = s.AppendModelSource(ctx, m.ID, "http://b")
	require.NoError(t, err)
	m, err = s.AppendModelSource(ctx, m.ID, "http://a")
	require.NoError(t, err)
	assert.Equal(t, []string{"http://a", "http://b"}, m.Sources)

	m.Sources[0] = "mutated"
	stored, err := s.GetModel(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "http://a", stored.Sources[0], "returned models are copies")

	missing, err := s.AppendModelSource(ctx, "42", "http://a")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
