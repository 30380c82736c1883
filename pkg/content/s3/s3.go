// Package s3 implements a content store backed by Amazon S3 or any
// S3-compatible service (MinIO, Localstack, Ceph RGW).
//
// Object keys mirror the filesystem backend's sharded layout under a
// configurable prefix, so a bucket can be inspected with the same mental
// model as a local cache directory. S3 PUTs are already atomic (an object
// is visible only once fully uploaded), which gives the same
// never-half-written guarantee the filesystem backend gets from rename.
//
// Writes spool to a local temp file because the content address is not
// known until the stream ends; the upload happens at Commit.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"github.com/hoardfs/hoard/pkg/content"
	"github.com/hoardfs/hoard/pkg/integrity"
)

// S3ContentStoreConfig configures the S3 backend.
type S3ContentStoreConfig struct {
	// Region is the AWS region (required).
	Region string

	// Bucket is the target bucket (required, must exist).
	Bucket string

	// KeyPrefix is prepended to every object key. Optional.
	KeyPrefix string

	// Endpoint overrides the S3 endpoint, for MinIO/Localstack.
	Endpoint string

	// AccessKeyID and SecretAccessKey configure static credentials.
	// Leave empty to use the default AWS credential chain.
	AccessKeyID     string
	SecretAccessKey string

	// UsePathStyle forces path-style addressing (required by most
	// S3-compatible services).
	UsePathStyle bool
}

// S3ContentStore implements content.ContentStore on an S3 bucket.
type S3ContentStore struct {
	client *awss3.Client
	bucket string
	prefix string
}

// NewS3ContentStore builds the AWS client from cfg and returns the store.
func NewS3ContentStore(ctx context.Context, cfg S3ContentStoreConfig) (*S3ContentStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 content store: bucket is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("s3 content store: region is required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &S3ContentStore{client: client, bucket: cfg.Bucket, prefix: cfg.KeyPrefix}, nil
}

// objectKey maps a digest to the sharded object key, mirroring the
// filesystem layout: <prefix>/content/<aa>/<bb>/<rest>.
func (s *S3ContentStore) objectKey(sri integrity.Integrity) string {
	h := sri.Hex()
	return path.Join(s.prefix, "content", h[0:2], h[2:4], h[4:])
}

// Writer opens a write handle spooling to a local temp file.
func (s *S3ContentStore) Writer(ctx context.Context, algo integrity.Algorithm) (content.WriteHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	hasher, err := integrity.NewHasher(algo)
	if err != nil {
		return nil, err
	}
	spool, err := os.CreateTemp("", "hoard-s3-"+uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("failed to create spool file: %v: %w", err, content.ErrStoreWrite)
	}
	return &s3WriteHandle{store: s, spool: spool, hasher: hasher}, nil
}

type s3WriteHandle struct {
	store   *S3ContentStore
	spool   *os.File
	hasher  *integrity.Hasher
	written int64
	done    bool
}

func (w *s3WriteHandle) Write(p []byte) (int, error) {
	n, err := w.spool.Write(p)
	w.hasher.Write(p[:n])
	w.written += int64(n)
	if err != nil {
		return n, fmt.Errorf("failed to spool content: %w", err)
	}
	return n, nil
}

func (w *s3WriteHandle) Written() int64 {
	return w.written
}

// Commit finalizes the digest and uploads the spooled bytes. If an object
// already exists under the key the upload is skipped: same digest, same
// bytes.
func (w *s3WriteHandle) Commit(ctx context.Context) (integrity.Integrity, error) {
	if w.done {
		return integrity.Integrity{}, fmt.Errorf("commit on closed write handle: %w", content.ErrStoreWrite)
	}
	defer w.cleanup()
	w.done = true

	if err := ctx.Err(); err != nil {
		return integrity.Integrity{}, err
	}
	sri := w.hasher.Sum()
	key := w.store.objectKey(sri)

	exists, err := w.store.keyExists(ctx, key)
	if err != nil {
		return integrity.Integrity{}, fmt.Errorf("failed to check for existing content %s: %v: %w", sri, err, content.ErrStoreWrite)
	}
	if exists {
		return sri, nil
	}

	if _, err := w.spool.Seek(0, io.SeekStart); err != nil {
		return integrity.Integrity{}, fmt.Errorf("failed to rewind spool file: %v: %w", err, content.ErrStoreWrite)
	}
	_, err = w.store.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:        aws.String(w.store.bucket),
		Key:           aws.String(key),
		Body:          w.spool,
		ContentLength: aws.Int64(w.written),
	})
	if err != nil {
		return integrity.Integrity{}, fmt.Errorf("failed to upload content %s: %v: %w", sri, err, content.ErrStoreWrite)
	}
	return sri, nil
}

func (w *s3WriteHandle) Abort() error {
	w.done = true
	w.cleanup()
	return nil
}

func (w *s3WriteHandle) cleanup() {
	_ = w.spool.Close()
	_ = os.Remove(w.spool.Name())
}

// Read downloads and verifies the whole blob.
func (s *S3ContentStore) Read(ctx context.Context, sri integrity.Integrity, expectedSize int64) ([]byte, error) {
	handle, err := s.Open(ctx, sri)
	if err != nil {
		return nil, err
	}
	defer func() { _ = handle.Close() }()

	data, err := io.ReadAll(handle)
	if err != nil {
		return nil, fmt.Errorf("failed to download content %s: %w", sri, err)
	}
	if expectedSize >= 0 && int64(len(data)) != expectedSize {
		return nil, fmt.Errorf("content %s: got %d bytes, expected %d: %w",
			sri, len(data), expectedSize, content.ErrSizeMismatch)
	}
	if err := handle.Verify(); err != nil {
		return nil, err
	}
	return data, nil
}

// Open returns a streaming verifying reader over the object body.
func (s *S3ContentStore) Open(ctx context.Context, sri integrity.Integrity) (content.ReadHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := content.ValidateIntegrity(sri); err != nil {
		return nil, err
	}
	hasher, err := integrity.NewHasher(sri.Algorithm)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(sri)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("content %s: %w", sri, content.ErrContentNotFound)
		}
		return nil, fmt.Errorf("failed to get content %s: %w", sri, err)
	}
	return &s3ReadHandle{body: out.Body, hasher: hasher, expected: sri}, nil
}

type s3ReadHandle struct {
	body     io.ReadCloser
	hasher   *integrity.Hasher
	expected integrity.Integrity
}

func (r *s3ReadHandle) Read(p []byte) (int, error) {
	n, err := r.body.Read(p)
	r.hasher.Write(p[:n])
	return n, err
}

func (r *s3ReadHandle) Close() error {
	return r.body.Close()
}

func (r *s3ReadHandle) Verify() error {
	actual := r.hasher.Sum()
	if !integrity.Matches(r.expected, actual) {
		return fmt.Errorf("content %s: recomputed digest %s: %w",
			r.expected, actual, content.ErrIntegrityMismatch)
	}
	return nil
}

// Exists reports presence via HeadObject.
func (s *S3ContentStore) Exists(ctx context.Context, sri integrity.Integrity) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := content.ValidateIntegrity(sri); err != nil {
		return false, err
	}
	return s.keyExists(ctx, s.objectKey(sri))
}

func (s *S3ContentStore) keyExists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to head object %s: %w", key, err)
	}
	return true, nil
}

// Remove deletes the object; S3 DeleteObject is idempotent.
func (s *S3ContentStore) Remove(ctx context.Context, sri integrity.Integrity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := content.ValidateIntegrity(sri); err != nil {
		return err
	}
	_, err := s.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(sri)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete content %s: %w", sri, err)
	}
	return nil
}

// RemoveAll deletes every object under the store's content prefix,
// paginating through the listing. Best-effort.
func (s *S3ContentStore) RemoveAll(ctx context.Context) error {
	prefix := path.Join(s.prefix, "content") + "/"
	paginator := awss3.NewListObjectsV2Paginator(s.client, &awss3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to list content objects: %w", err)
		}
		for _, obj := range page.Contents {
			_, err := s.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
				Bucket: aws.String(s.bucket),
				Key:    obj.Key,
			})
			if err != nil {
				return fmt.Errorf("failed to delete object %s: %w", aws.ToString(obj.Key), err)
			}
		}
	}
	return nil
}

// Close implements content.ContentStore.
func (s *S3ContentStore) Close() error {
	return nil
}

func isNotFound(err error) bool {
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	return errors.As(err, &notFound) || errors.As(err, &noSuchKey)
}

var _ content.ContentStore = (*S3ContentStore)(nil)
