package s3

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hoardfs/hoard/pkg/content"
	contenttesting "github.com/hoardfs/hoard/pkg/content/testing"
)

// TestS3ContentStoreSuite runs the shared contract suite against a real
// S3-compatible endpoint (MinIO, Localstack). Skipped unless
// HOARD_TEST_S3_ENDPOINT is set, e.g.:
//
//	HOARD_TEST_S3_ENDPOINT=http://localhost:9000 \
//	HOARD_TEST_S3_BUCKET=hoard-test \
//	AWS_ACCESS_KEY_ID=minioadmin AWS_SECRET_ACCESS_KEY=minioadmin \
//	go test ./pkg/content/s3/
func TestS3ContentStoreSuite(t *testing.T) {
	endpoint := os.Getenv("HOARD_TEST_S3_ENDPOINT")
	if endpoint == "" {
		t.Skip("HOARD_TEST_S3_ENDPOINT not set; skipping S3 integration tests")
	}
	bucket := os.Getenv("HOARD_TEST_S3_BUCKET")
	if bucket == "" {
		bucket = "hoard-test"
	}

	suite := &contenttesting.StoreTestSuite{
		NewStore: func(t *testing.T) content.ContentStore {
			store, err := NewS3ContentStore(context.Background(), S3ContentStoreConfig{
				Region:          "us-east-1",
				Bucket:          bucket,
				KeyPrefix:       "suite-" + t.Name(),
				Endpoint:        endpoint,
				AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
				SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
				UsePathStyle:    true,
			})
			require.NoError(t, err)
			return store
		},
	}
	suite.Run(t)
}
