package publisher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// ErrUploadRejected marks uploads a retry cannot fix: the bucket is
// missing or the credentials are not allowed to write to it.
var ErrUploadRejected = errors.New("object store rejected the upload")

// S3Options configures NewS3Client.
type S3Options struct {
	// Region defaults to us-east-1.
	Region string
	// Endpoint selects S3-compatible storage with path-style addressing.
	Endpoint string
	// Static credentials replace the default chain when both keys are set.
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// S3Client adapts an AWS S3 client to ObjectClient.
type S3Client struct {
	client   *s3.Client
	region   string
	endpoint string
}

// NewS3Client creates an S3 client.
func NewS3Client(ctx context.Context, opts S3Options) (*S3Client, error) {
	region := opts.Region
	if region == "" {
		region = "us-east-1"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, opts.SessionToken),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if opts.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		})
	}

	return &S3Client{
		client:   s3.NewFromConfig(awsCfg, s3Opts...),
		region:   region,
		endpoint: opts.Endpoint,
	}, nil
}

// Upload writes content to bucket/object.
func (c *S3Client) Upload(ctx context.Context, bucket, object, contentType string, content io.Reader) error {
	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(bucket),
		Key:          aws.String(object),
		Body:         content,
		ContentType:  aws.String(contentType),
		CacheControl: aws.String("no-cache"),
	})
	if err != nil {
		if rejectedByS3(err) {
			return errors.Join(ErrUploadRejected, err)
		}
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}

// BaseURL returns the public base of bucket.
func (c *S3Client) BaseURL(bucket string) string {
	if c.endpoint != "" {
		return strings.TrimRight(c.endpoint, "/") + "/" + bucket
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", bucket, c.region)
}

func rejectedByS3(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "NoSuchBucket", "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return true
	}
	return false
}

// AzureOptions configures NewAzureClient. Without a connection string or
// account key the default Azure credential chain is used.
type AzureOptions struct {
	AccountName      string
	AccountKey       string
	ConnectionString string
}

// AzureClient adapts an Azure Blob Storage client to ObjectClient.
// Buckets are containers.
type AzureClient struct {
	client *azblob.Client
}

// NewAzureClient creates an Azure Blob Storage client.
func NewAzureClient(opts AzureOptions) (*AzureClient, error) {
	if opts.AccountName == "" && opts.ConnectionString == "" {
		return nil, errors.New("account name or connection string is required")
	}

	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", opts.AccountName)
	var (
		client *azblob.Client
		err    error
	)
	switch {
	case opts.ConnectionString != "":
		client, err = azblob.NewClientFromConnectionString(opts.ConnectionString, nil)
	case opts.AccountKey != "":
		cred, credErr := azblob.NewSharedKeyCredential(opts.AccountName, opts.AccountKey)
		if credErr != nil {
			return nil, fmt.Errorf("create shared key credential: %w", credErr)
		}
		client, err = azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	default:
		cred, credErr := azidentity.NewDefaultAzureCredential(nil)
		if credErr != nil {
			return nil, fmt.Errorf("create default credential: %w", credErr)
		}
		client, err = azblob.NewClient(serviceURL, cred, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("create azure blob client: %w", err)
	}
	return &AzureClient{client: client}, nil
}

// Upload writes content to container/blob.
func (c *AzureClient) Upload(ctx context.Context, container, object, contentType string, content io.Reader) error {
	cacheControl := "no-cache"
	_, err := c.client.UploadStream(ctx, container, object, content, &azblob.UploadStreamOptions{
		HTTPHeaders: &blob.HTTPHeaders{
			BlobContentType:  &contentType,
			BlobCacheControl: &cacheControl,
		},
	})
	if err != nil {
		if rejectedByAzure(err) {
			return errors.Join(ErrUploadRejected, err)
		}
		return fmt.Errorf("upload blob: %w", err)
	}
	return nil
}

// BaseURL returns the public base of container.
func (c *AzureClient) BaseURL(container string) string {
	return strings.TrimRight(c.client.URL(), "/") + "/" + container
}

func rejectedByAzure(err error) bool {
	if bloberror.HasCode(err, bloberror.ContainerNotFound, bloberror.AuthorizationFailure, bloberror.AuthenticationFailed) {
		return true
	}
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode == http.StatusForbidden || respErr.StatusCode == http.StatusNotFound
	}
	return false
}

var (
	_ ObjectClient = (*S3Client)(nil)
	_ ObjectClient = (*AzureClient)(nil)
)
