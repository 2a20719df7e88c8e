package memory

import (
	"context"
	"testing"

	"github.com/marmos91/dittoweb/pkg/content"
	contenttesting "github.com/marmos91/dittoweb/pkg/content/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMemoryContentStore runs the complete ContentStore test suite
// against the MemoryContentStore implementation.
func TestMemoryContentStore(t *testing.T) {
	suite := &contenttesting.StoreTestSuite{
		NewStore: func() content.ContentStore {
			store, err := NewMemoryContentStore(context.Background(), 0)
			if err != nil {
				t.Fatalf("Failed to create MemoryContentStore: %v", err)
			}
			return store
		},
	}

	suite.Run(t)
}

func TestMemoryContentStore_SizeLimit(t *testing.T) {
	ctx := context.Background()
	store, err := NewMemoryContentStore(ctx, 10)
	require.NoError(t, err)

	require.NoError(t, store.WriteContent(ctx, "a.txt", []byte("12345")))
	require.NoError(t, store.WriteContent(ctx, "b.txt", []byte("12345")))
	assert.Error(t, store.WriteContent(ctx, "c.txt", []byte("1")))

	// Replacing content only counts the difference.
	require.NoError(t, store.WriteContent(ctx, "a.txt", []byte("1234")))
	require.NoError(t, store.WriteContent(ctx, "c.txt", []byte("1")))

	require.NoError(t, store.Delete(ctx, "b.txt"))
	require.NoError(t, store.WriteContent(ctx, "d.txt", []byte("12345")))
}
