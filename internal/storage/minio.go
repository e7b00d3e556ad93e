package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"docvault/internal/apperr"
	"docvault/internal/config"
	"docvault/internal/model"
)

// minioStorage implements the Storage gateway over an S3-compatible backend
// (MinIO, AWS S3, etc.). It is safe for concurrent use by multiple goroutines.
type minioStorage struct {
	client   *minio.Client
	bucket   string
	region   string
	backend  model.StorageBackend
	endpoint string
}

// NewMinIO creates a new S3-compatible storage gateway backed by MinIO.
// It validates connectivity and ensures the bucket exists (creates it if missing).
func NewMinIO(cfg config.StorageConfig) (Storage, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("storage endpoint is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("storage credentials are required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("storage bucket is required")
	}

	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	backend := model.BackendMinIO
	if cfg.Backend == "s3" {
		backend = model.BackendS3
	}

	ms := &minioStorage{
		client:   cli,
		bucket:   cfg.Bucket,
		region:   cfg.Region,
		backend:  backend,
		endpoint: cfg.Endpoint,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Ensure bucket exists.
	exists, err := cli.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket existence: %w", err)
	}
	if !exists {
		if err := cli.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	return ms, nil
}

func (m *minioStorage) bucketFor(loc Location) string {
	if loc.Bucket != "" {
		return loc.Bucket
	}
	return m.bucket
}

// Put uploads an object using streaming I/O only (no local disk).
func (m *minioStorage) Put(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (Location, error) {
	putOpts := minio.PutObjectOptions{
		ContentType:  opt.ContentType,
		UserMetadata: opt.Metadata,
	}
	_, err := m.client.PutObject(ctx, m.bucket, key, r, opt.Size, putOpts)
	if err != nil {
		return Location{}, mapMinioErr(err, "put object")
	}
	return Location{
		Backend:     m.backend,
		Bucket:      m.bucket,
		Key:         key,
		Region:      m.region,
		EndpointURL: m.endpoint,
	}, nil
}

// Get downloads an object's full content into memory.
func (m *minioStorage) Get(ctx context.Context, loc Location) ([]byte, error) {
	rc, info, err := m.GetStream(ctx, loc)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	buf := bytes.NewBuffer(make([]byte, 0, int(info.Size)))
	if _, err := io.Copy(buf, rc); err != nil {
		return nil, mapMinioErr(err, "read object")
	}
	return buf.Bytes(), nil
}

// GetStream downloads an object's content as a ReadCloser along with basic info.
func (m *minioStorage) GetStream(ctx context.Context, loc Location) (io.ReadCloser, ObjectInfo, error) {
	obj, err := m.client.GetObject(ctx, m.bucketFor(loc), loc.Key, minio.GetObjectOptions{})
	if err != nil {
		return nil, ObjectInfo{}, mapMinioErr(err, "get object")
	}
	// Fetch stat to populate info; avoid reading content into memory.
	st, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, ObjectInfo{}, mapMinioErr(err, "stat object")
	}
	info := ObjectInfo{
		Key:          loc.Key,
		Size:         st.Size,
		ETag:         st.ETag,
		ContentType:  st.ContentType,
		LastModified: st.LastModified,
		Metadata:     st.UserMetadata,
	}
	return obj, info, nil
}

// Delete removes an object. A missing key is treated as success.
func (m *minioStorage) Delete(ctx context.Context, loc Location) error {
	err := m.client.RemoveObject(ctx, m.bucketFor(loc), loc.Key, minio.RemoveObjectOptions{})
	if err != nil {
		mapped := mapMinioErr(err, "delete object")
		if apperr.IsKind(mapped, apperr.KindNotFound) {
			return nil
		}
		return mapped
	}
	return nil
}

// Exists reports object presence via a stat round trip.
func (m *minioStorage) Exists(ctx context.Context, loc Location) (bool, error) {
	_, err := m.client.StatObject(ctx, m.bucketFor(loc), loc.Key, minio.StatObjectOptions{})
	if err != nil {
		mapped := mapMinioErr(err, "stat object")
		if apperr.IsKind(mapped, apperr.KindNotFound) {
			return false, nil
		}
		return false, mapped
	}
	return true, nil
}

// Stat returns object metadata without reading content.
func (m *minioStorage) Stat(ctx context.Context, loc Location) (ObjectInfo, error) {
	st, err := m.client.StatObject(ctx, m.bucketFor(loc), loc.Key, minio.StatObjectOptions{})
	if err != nil {
		return ObjectInfo{}, mapMinioErr(err, "stat object")
	}
	return ObjectInfo{
		Key:          loc.Key,
		Size:         st.Size,
		ETag:         st.ETag,
		ContentType:  st.ContentType,
		LastModified: st.LastModified,
		Metadata:     st.UserMetadata,
	}, nil
}

// Presign generates a pre-signed URL for the requested operation.
func (m *minioStorage) Presign(ctx context.Context, loc Location, expiry time.Duration, op PresignOp) (string, error) {
	var u *url.URL
	var err error
	switch op {
	case PresignPut:
		u, err = m.client.PresignedPutObject(ctx, m.bucketFor(loc), loc.Key, expiry)
	default:
		u, err = m.client.PresignedGetObject(ctx, m.bucketFor(loc), loc.Key, expiry, url.Values{})
	}
	if err != nil {
		return "", mapMinioErr(err, "presign object")
	}
	return u.String(), nil
}

// List returns a page of objects under prefix. The continuation token is the
// last key of the previous page.
func (m *minioStorage) List(ctx context.Context, prefix string, limit int, token string) (ListResult, error) {
	if limit <= 0 {
		limit = 1000
	}
	opts := minio.ListObjectsOptions{
		Prefix:     prefix,
		Recursive:  true,
		StartAfter: token,
	}

	var res ListResult
	for obj := range m.client.ListObjects(ctx, m.bucket, opts) {
		if obj.Err != nil {
			return ListResult{}, mapMinioErr(obj.Err, "list objects")
		}
		if len(res.Entries) == limit {
			res.Truncated = true
			res.NextToken = res.Entries[limit-1].Key
			break
		}
		res.Entries = append(res.Entries, ListEntry{
			Key:          obj.Key,
			Size:         obj.Size,
			ETag:         obj.ETag,
			LastModified: obj.LastModified,
		})
	}
	return res, nil
}

// Copy duplicates an object within the backend.
func (m *minioStorage) Copy(ctx context.Context, src, dst Location) error {
	_, err := m.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: m.bucketFor(dst), Object: dst.Key},
		minio.CopySrcOptions{Bucket: m.bucketFor(src), Object: src.Key},
	)
	if err != nil {
		return mapMinioErr(err, "copy object")
	}
	return nil
}

// HealthCheck verifies the backend is reachable.
func (m *minioStorage) HealthCheck(ctx context.Context) error {
	_, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return mapMinioErr(err, "health check")
	}
	return nil
}

// mapMinioErr normalizes a minio/network failure into the apperr taxonomy.
// The backend error text is kept in the wrapped cause for logs only.
func mapMinioErr(err error, op string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Wrap(apperr.KindTimeout, err, "storage %s timed out", op)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return apperr.Wrap(apperr.KindTimeout, err, "storage %s timed out", op)
		}
		return apperr.Wrap(apperr.KindUnavailable, err, "storage unavailable")
	}

	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return apperr.Wrap(apperr.KindNotFound, err, "object not found")
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return apperr.Wrap(apperr.KindPermissionDenied, err, "storage access denied")
	case "QuotaExceeded", "EntityTooLarge":
		return apperr.Wrap(apperr.KindQuotaExceeded, err, "storage quota exceeded")
	case "":
		// No S3 error code: the request never reached the backend.
		return apperr.Wrap(apperr.KindUnavailable, err, "storage unavailable")
	default:
		return apperr.Wrap(apperr.KindInternal, err, "storage %s failed", op)
	}
}
