package testing

import (
	"context"
	"testing"

	"github.com/marmos91/dittoweb/pkg/content"
	"github.com/stretchr/testify/assert"
)

// RunReadTests executes all ContentStore read operation tests.
func (suite *StoreTestSuite) RunReadTests(t *testing.T) {
	t.Run("ReadContent_Basic", suite.testReadContentBasic)
	t.Run("ReadContent_NotFound", suite.testReadContentNotFound)
	t.Run("GetContentSize_Basic", suite.testGetContentSizeBasic)
	t.Run("GetContentSize_Empty", suite.testGetContentSizeEmpty)
	t.Run("GetContentSize_NotFound", suite.testGetContentSizeNotFound)
	t.Run("ContentExists", suite.testContentExists)
	t.Run("NestedPath", suite.testNestedPath)
	t.Run("Directory", suite.testDirectory)
	t.Run("Traversal", suite.testTraversal)
	t.Run("CancelledContext", suite.testCancelledContext)
}

// ============================================================================
// ReadContent Tests
// ============================================================================

func (suite *StoreTestSuite) testReadContentBasic(t *testing.T) {
	store := suite.NewStore()
	w := writable(t, store)

	id := generateTestID("read-basic")
	data := generateTestData(4096)
	mustWriteContent(t, w, id, data)

	assertContentEquals(t, store, id, data)
}

func (suite *StoreTestSuite) testReadContentNotFound(t *testing.T) {
	store := suite.NewStore()

	_, _, err := store.ReadContent(testContext(), "does/not/exist.html")
	AssertErrorIs(t, content.ErrContentNotFound, err)
}

// ============================================================================
// GetContentSize Tests
// ============================================================================

func (suite *StoreTestSuite) testGetContentSizeBasic(t *testing.T) {
	store := suite.NewStore()
	w := writable(t, store)

	id := generateTestID("size-basic")
	mustWriteContent(t, w, id, generateTestData(1234))

	assertContentSize(t, store, id, 1234)
}

func (suite *StoreTestSuite) testGetContentSizeEmpty(t *testing.T) {
	store := suite.NewStore()
	w := writable(t, store)

	id := generateTestID("size-empty")
	mustWriteContent(t, w, id, []byte{})

	assertContentSize(t, store, id, 0)
}

func (suite *StoreTestSuite) testGetContentSizeNotFound(t *testing.T) {
	store := suite.NewStore()

	_, err := store.GetContentSize(testContext(), "missing.txt")
	AssertErrorIs(t, content.ErrContentNotFound, err)
}

// ============================================================================
// Path handling
// ============================================================================

func (suite *StoreTestSuite) testContentExists(t *testing.T) {
	store := suite.NewStore()
	w := writable(t, store)

	id := generateTestID("exists")
	assertContentExists(t, store, id, false)

	mustWriteContent(t, w, id, []byte("x"))
	assertContentExists(t, store, id, true)
}

func (suite *StoreTestSuite) testNestedPath(t *testing.T) {
	store := suite.NewStore()
	w := writable(t, store)

	id := content.ContentID("docs/guide/intro.html")
	data := []byte("<h1>intro</h1>")
	mustWriteContent(t, w, id, data)

	assertContentEquals(t, store, id, data)
	assertContentSize(t, store, id, uint64(len(data)))

	// Leading slash and redundant segments resolve to the same resource.
	assertContentSize(t, store, "/docs/./guide//intro.html", uint64(len(data)))
}

func (suite *StoreTestSuite) testDirectory(t *testing.T) {
	if suite.SkipDirectories {
		t.Skip("Store has no directories")
	}
	store := suite.NewStore()
	w := writable(t, store)

	mustWriteContent(t, w, "dir/file.txt", []byte("inside"))

	_, err := store.GetContentSize(testContext(), "dir")
	AssertErrorIs(t, content.ErrNotRegularFile, err)

	_, _, err = store.ReadContent(testContext(), "dir")
	AssertErrorIs(t, content.ErrNotRegularFile, err)

	assertContentExists(t, store, "dir", false)
}

func (suite *StoreTestSuite) testTraversal(t *testing.T) {
	store := suite.NewStore()

	_, err := store.GetContentSize(testContext(), "../etc/passwd")
	AssertErrorIs(t, content.ErrInvalidContentID, err)

	_, _, err = store.ReadContent(testContext(), "a/../../secret")
	AssertErrorIs(t, content.ErrInvalidContentID, err)
}

func (suite *StoreTestSuite) testCancelledContext(t *testing.T) {
	store := suite.NewStore()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.GetContentSize(ctx, "anything.txt")
	assert.ErrorIs(t, err, context.Canceled)

	_, _, err = store.ReadContent(ctx, "anything.txt")
	assert.ErrorIs(t, err, context.Canceled)
}
