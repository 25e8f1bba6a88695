package publish

import (
	"context"
	"io"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rotisserie/eris"
)

// MinioProvider uploads to MinIO or any other S3 compatible storage.
type MinioProvider struct {
	client *minio.Client
	bucket string
	prefix string
}

func NewMinioProvider() *MinioProvider {
	return &MinioProvider{}
}

func (m *MinioProvider) Name() string {
	return "minio"
}

// splitEndpoint strips an http:// or https:// scheme from endpoint. The scheme decides whether
// TLS is used; without one TLS is on.
func splitEndpoint(endpoint string) (string, bool) {
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		return strings.TrimSuffix(strings.TrimPrefix(endpoint, "https://"), "/"), true
	case strings.HasPrefix(endpoint, "http://"):
		return strings.TrimSuffix(strings.TrimPrefix(endpoint, "http://"), "/"), false
	default:
		return strings.TrimSuffix(endpoint, "/"), true
	}
}

// Configure expects endpoint, access_key, secret_key and bucket. region and prefix are optional.
// No request is sent; a missing bucket shows up on the first upload.
func (m *MinioProvider) Configure(config map[string]interface{}) error {
	endpoint, ok := getString(config, "endpoint")
	if !ok {
		return eris.New("minio: endpoint is required")
	}

	accessKey, ok := getString(config, "access_key")
	if !ok {
		return eris.New("minio: access_key is required")
	}

	secretKey, ok := getString(config, "secret_key")
	if !ok {
		return eris.New("minio: secret_key is required")
	}

	bucket, ok := getString(config, "bucket")
	if !ok {
		return eris.New("minio: bucket is required")
	}

	host, secure := splitEndpoint(endpoint)
	client, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
		Region: getStringDefault(config, "region", "us-east-1"),
	})
	if err != nil {
		return eris.Wrap(err, "minio: failed to create client")
	}

	m.client = client
	m.bucket = bucket
	m.prefix = strings.Trim(getStringDefault(config, "prefix", ""), "/")
	return nil
}

// ObjectName returns the key remotePath is stored under.
func (m *MinioProvider) ObjectName(remotePath string) string {
	if m.prefix == "" {
		return remotePath
	}
	return path.Join(m.prefix, remotePath)
}

func (m *MinioProvider) Upload(ctx context.Context, reader io.Reader, remotePath string) error {
	if m.client == nil {
		return eris.New("minio: provider not configured")
	}

	objectName := m.ObjectName(remotePath)

	// -1 means unknown size, the client switches to a streaming upload
	_, err := m.client.PutObject(ctx, m.bucket, objectName, reader, -1, minio.PutObjectOptions{})
	if err != nil {
		return eris.Wrapf(err, "minio: failed to upload to %s", objectName)
	}

	return nil
}
