package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/felixgeelhaar/agent-registry/domain/registry"
)

// ObjectClient uploads objects to a bucket.
// This allows for mock implementations in testing.
type ObjectClient interface {
	Upload(ctx context.Context, bucket, object, contentType string, content io.Reader) error
}

// ObjectConfig configures the object storage publisher.
type ObjectConfig struct {
	// Client uploads the documents.
	Client ObjectClient
	// Bucket is the destination bucket.
	Bucket string
	// Prefix is prepended to every object name.
	Prefix string
	// RetrievalBaseURL is the public base of the bucket. Defaults to the
	// client's BaseURL, or https://storage.googleapis.com/{bucket}.
	RetrievalBaseURL string
}

// baseURLer is implemented by clients that know their public URL.
type baseURLer interface {
	BaseURL(bucket string) string
}

// ObjectPublisher writes facts documents as {prefix}@{username}.json objects.
type ObjectPublisher struct {
	client  ObjectClient
	bucket  string
	prefix  string
	baseURL string
}

// NewObjectPublisher creates an object storage publisher.
func NewObjectPublisher(cfg ObjectConfig) (*ObjectPublisher, error) {
	if cfg.Client == nil {
		return nil, errors.New("object client is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	base := cfg.RetrievalBaseURL
	if base == "" {
		if b, ok := cfg.Client.(baseURLer); ok {
			base = b.BaseURL(cfg.Bucket)
		} else {
			base = "https://storage.googleapis.com/" + cfg.Bucket
		}
	}
	if cfg.Prefix != "" {
		base = base + "/" + strings.Trim(cfg.Prefix, "/")
	}

	return &ObjectPublisher{
		client:  cfg.Client,
		bucket:  cfg.Bucket,
		prefix:  cfg.Prefix,
		baseURL: base,
	}, nil
}

// ObjectName returns the object name of a username.
func (p *ObjectPublisher) ObjectName(username string) string {
	name := fmt.Sprintf("@%s.json", username)
	if p.prefix == "" {
		return name
	}
	return strings.Trim(p.prefix, "/") + "/" + name
}

// Publish uploads facts and returns their public URL.
func (p *ObjectPublisher) Publish(ctx context.Context, facts *registry.AgentFacts) (string, error) {
	data, err := json.Marshal(facts)
	if err != nil {
		return "", registry.Permanent(fmt.Errorf("failed to serialize facts: %w", err))
	}

	if err := p.client.Upload(ctx, p.bucket, p.ObjectName(facts.Username), "application/json", bytes.NewReader(data)); err != nil {
		if errors.Is(err, ErrUploadRejected) || errors.Is(err, gcs.ErrBucketNotExist) {
			return "", registry.Permanent(err)
		}
		return "", registry.Transient(err)
	}
	return FactsURL(p.baseURL, facts.Username), nil
}

// GCSClient adapts a Google Cloud Storage client to ObjectClient.
type GCSClient struct {
	client *gcs.Client
}

// GCSOptions configures NewGCSClient.
type GCSOptions struct {
	CredentialsFile string
	CredentialsJSON []byte
}

// NewGCSClient creates a GCS client. Without credentials it falls back
// to application default credentials.
func NewGCSClient(ctx context.Context, opts GCSOptions) (*GCSClient, error) {
	var clientOpts []option.ClientOption
	if opts.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}
	if len(opts.CredentialsJSON) > 0 {
		clientOpts = append(clientOpts, option.WithCredentialsJSON(opts.CredentialsJSON))
	}

	client, err := gcs.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &GCSClient{client: client}, nil
}

// Upload writes content to bucket/object.
func (c *GCSClient) Upload(ctx context.Context, bucket, object, contentType string, content io.Reader) error {
	writer := c.client.Bucket(bucket).Object(object).NewWriter(ctx)
	writer.ContentType = contentType
	writer.CacheControl = "no-cache"

	if _, err := io.Copy(writer, content); err != nil {
		_ = writer.Close()
		return fmt.Errorf("write object: %w", err)
	}
	if err := writer.Close(); err != nil {
		if errors.Is(err, gcs.ErrBucketNotExist) {
			return errors.Join(ErrUploadRejected, err)
		}
		return fmt.Errorf("close object writer: %w", err)
	}
	return nil
}

// Close releases the client.
func (c *GCSClient) Close() error {
	return c.client.Close()
}

var (
	_ registry.Publisher = (*ObjectPublisher)(nil)
	_ ObjectClient       = (*GCSClient)(nil)
)
