package testing

import (
	"testing"

	"github.com/marmos91/dittoweb/pkg/content"
	"github.com/stretchr/testify/assert"
)

// RunWriteTests executes all WritableContentStore operation tests.
func (suite *StoreTestSuite) RunWriteTests(t *testing.T) {
	t.Run("WriteContent_Basic", suite.testWriteContentBasic)
	t.Run("WriteContent_Overwrite", suite.testWriteContentOverwrite)
	t.Run("WriteContent_Traversal", suite.testWriteContentTraversal)
	t.Run("Delete_Success", suite.testDeleteSuccess)
	t.Run("Delete_Idempotent", suite.testDeleteIdempotent)
}

// ============================================================================
// WriteContent Tests
// ============================================================================

func (suite *StoreTestSuite) testWriteContentBasic(t *testing.T) {
	store := suite.NewStore()
	w := writable(t, store)

	id := generateTestID("write-basic")
	testData := []byte("Hello, World!")

	mustWriteContent(t, w, id, testData)

	assertContentEquals(t, store, id, testData)
	assertContentSize(t, store, id, uint64(len(testData)))
}

func (suite *StoreTestSuite) testWriteContentOverwrite(t *testing.T) {
	store := suite.NewStore()
	w := writable(t, store)

	id := generateTestID("write-overwrite")
	oldData := []byte("Old data")
	newData := []byte("New data that is longer")

	mustWriteContent(t, w, id, oldData)
	assertContentSize(t, store, id, uint64(len(oldData)))

	mustWriteContent(t, w, id, newData)
	assertContentEquals(t, store, id, newData)
	assertContentSize(t, store, id, uint64(len(newData)))
}

func (suite *StoreTestSuite) testWriteContentTraversal(t *testing.T) {
	store := suite.NewStore()
	w := writable(t, store)

	err := w.WriteContent(testContext(), "../escape.txt", []byte("nope"))
	assert.ErrorIs(t, err, content.ErrInvalidContentID)
}

// ============================================================================
// Delete Tests
// ============================================================================

func (suite *StoreTestSuite) testDeleteSuccess(t *testing.T) {
	store := suite.NewStore()
	w := writable(t, store)

	id := generateTestID("delete")
	mustWriteContent(t, w, id, []byte("bye"))
	assertContentExists(t, store, id, true)

	mustDelete(t, w, id)
	assertContentExists(t, store, id, false)

	_, err := store.GetContentSize(testContext(), id)
	AssertErrorIs(t, content.ErrContentNotFound, err)
}

func (suite *StoreTestSuite) testDeleteIdempotent(t *testing.T) {
	store := suite.NewStore()
	w := writable(t, store)

	id := generateTestID("delete-twice")
	mustDelete(t, w, id)
	mustDelete(t, w, id)
}
