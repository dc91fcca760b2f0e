package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNameLookupResolve(t *testing.T) {
	t.Parallel()

	loads := 0
	l := NewNameLookup(func(context.Context) ([]NameInfo, error) {
		loads++
		return []NameInfo{{ID: "1", DisplayName: "Home Improvement"}}, nil
	})

	info, ok, err := l.Resolve(context.Background(), "home improvement")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Home Improvement", info.DisplayName)
	require.Equal(t, "1", info.ID)

	_, ok, err = l.Resolve(context.Background(), "HOME IMPROVEMENT")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.Resolve(context.Background(), "nope")
	require.NoError(t, err)
	require.False(t, ok)

	// the table loads once across all resolves
	require.Equal(t, 1, loads)

	l.Invalidate()
	_, _, err = l.Resolve(context.Background(), "home improvement")
	require.NoError(t, err)
	require.Equal(t, 2, loads)
}

func TestNameLookupEmptyName(t *testing.T) {
	t.Parallel()

	l := NewNameLookup(func(context.Context) ([]NameInfo, error) {
		t.Fatal("should not load for empty name")
		return nil, nil
	})
	_, ok, err := l.Resolve(context.Background(), "")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestNameLookupSuggest(t *testing.T) {
	t.Parallel()

	l := staticLookup(
		NameInfo{ID: "1", DisplayName: "Groceries"},
		NameInfo{ID: "2", DisplayName: "Gas & Fuel"},
	)

	require.Equal(t, "Groceries", l.Suggest(context.Background(), "grocerys"))
	require.Empty(t, l.Suggest(context.Background(), "completely different"))
}
