package testing

import (
	"context"
	"testing"

	"github.com/marmos91/dittoweb/pkg/content"
)

// StoreTestSuite is a comprehensive test suite for ContentStore implementations.
// It tests the interface contract, not implementation details, making it reusable
// across different implementations (memory, filesystem, S3, stat cache, etc.).
//
// Stores are seeded through WritableContentStore. A store that is not writable
// skips every test that needs seeded content.
//
// Usage:
//
//	func TestMyContentStore(t *testing.T) {
//	    suite := &testing.StoreTestSuite{
//	        NewStore: func() content.ContentStore {
//	            return mystore.New()
//	        },
//	    }
//	    suite.Run(t)
//	}
type StoreTestSuite struct {
	// NewStore is a factory function that creates a fresh ContentStore instance
	// for each test. This ensures test isolation.
	NewStore func() content.ContentStore

	// SkipDirectories disables directory tests for backends without
	// directories (S3).
	SkipDirectories bool
}

// Run executes all tests in the suite.
func (suite *StoreTestSuite) Run(t *testing.T) {
	t.Run("ReadOperations", suite.RunReadTests)
	t.Run("WriteOperations", suite.RunWriteTests)
}

// testContext returns a standard test context.
func testContext() context.Context {
	return context.Background()
}
