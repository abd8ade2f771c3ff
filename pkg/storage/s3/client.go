package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/chryzcode/ycsyh-site/pkg/config"
	"github.com/chryzcode/ycsyh-site/pkg/logger"
)

const (
	defaultRegion        = "eu-west-2"
	defaultPresignExpiry = 15 * time.Minute
	uploadPartSize       = 10 * 1024 * 1024
)

type uploaderAPI interface {
	Upload(ctx context.Context, input *awss3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

type presignAPI interface {
	PresignPutObject(ctx context.Context, params *awss3.PutObjectInput, optFns ...func(*awss3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

type bucketAPI interface {
	HeadBucket(ctx context.Context, params *awss3.HeadBucketInput, optFns ...func(*awss3.Options)) (*awss3.HeadBucketOutput, error)
}

// Client stores beat media and contract PDFs in an S3-compatible bucket.
type Client struct {
	bucket        string
	region        string
	endpoint      string
	pathStyle     bool
	publicBaseURL string
	presignExpiry time.Duration

	uploader  uploaderAPI
	presigner presignAPI
	buckets   bucketAPI
}

// Pinger exposes the readiness check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PutInput describes a single object write.
type PutInput struct {
	Key         string
	Body        io.Reader
	ContentType string
	// PublicRead applies the public-read canned ACL.
	PublicRead bool
}

// Object is a stored object and the URL it is served from.
type Object struct {
	Key string
	URL string
}

// PresignedPut is a time-limited URL the browser can PUT a file to directly.
type PresignedPut struct {
	URL       string
	Method    string
	Headers   map[string]string
	ExpiresAt time.Time
}

// NewClient loads AWS config, falling back to the default credential chain when no static keys are set.
func NewClient(ctx context.Context, cfg config.StorageConfig, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("storage bucket is required")
	}
	region := cfg.Region
	if region == "" {
		region = defaultRegion
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" || cfg.SecretAccessKey != "" {
		if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
			return nil, errors.New("storage access key id and secret must be set together")
		}
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	api := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	expiry := cfg.PresignExpiry
	if expiry <= 0 {
		expiry = defaultPresignExpiry
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"bucket": cfg.Bucket, "region": region}), "storage.client.ready")
	}

	return &Client{
		bucket:        cfg.Bucket,
		region:        region,
		endpoint:      endpoint,
		pathStyle:     cfg.UsePathStyle,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		presignExpiry: expiry,
		uploader: manager.NewUploader(api, func(u *manager.Uploader) {
			u.PartSize = uploadPartSize
		}),
		presigner: awss3.NewPresignClient(api),
		buckets:   api,
	}, nil
}

func (c *Client) Bucket() string {
	return c.bucket
}

// Put streams the body through the multipart upload manager.
func (c *Client) Put(ctx context.Context, in PutInput) (*Object, error) {
	key := strings.TrimLeft(strings.TrimSpace(in.Key), "/")
	if key == "" {
		return nil, errors.New("object key is required")
	}
	if in.Body == nil {
		return nil, errors.New("object body is required")
	}

	input := &awss3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
		Body:   in.Body,
	}
	if in.ContentType != "" {
		input.ContentType = aws.String(in.ContentType)
	}
	if in.PublicRead {
		input.ACL = types.ObjectCannedACLPublicRead
	}

	if _, err := c.uploader.Upload(ctx, input); err != nil {
		return nil, fmt.Errorf("upload %s: %w", key, err)
	}
	return &Object{Key: key, URL: c.PublicURL(key)}, nil
}

// PresignPut signs a PUT for key with the configured expiry.
func (c *Client) PresignPut(ctx context.Context, key, contentType string) (*PresignedPut, error) {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if key == "" {
		return nil, errors.New("object key is required")
	}
	input := &awss3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	expiresAt := time.Now().UTC().Add(c.presignExpiry)
	req, err := c.presigner.PresignPutObject(ctx, input, awss3.WithPresignExpires(c.presignExpiry))
	if err != nil {
		return nil, fmt.Errorf("presign %s: %w", key, err)
	}
	return &PresignedPut{
		URL:       req.URL,
		Method:    req.Method,
		Headers:   flattenHeaders(req.SignedHeader),
		ExpiresAt: expiresAt,
	}, nil
}

// PublicURL is where a stored key is served from.
func (c *Client) PublicURL(key string) string {
	escaped := escapeKey(key)
	switch {
	case c.publicBaseURL != "":
		return c.publicBaseURL + "/" + escaped
	case c.endpoint != "" && c.pathStyle:
		return c.endpoint + "/" + c.bucket + "/" + escaped
	case c.endpoint != "":
		u, err := url.Parse(c.endpoint)
		if err != nil || u.Host == "" {
			return c.endpoint + "/" + c.bucket + "/" + escaped
		}
		return u.Scheme + "://" + c.bucket + "." + u.Host + "/" + escaped
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", c.bucket, c.region, escaped)
	}
}

// Ping checks the bucket is reachable with the configured credentials.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.buckets.HeadBucket(ctx, &awss3.HeadBucketInput{Bucket: aws.String(c.bucket)}); err != nil {
		return fmt.Errorf("head bucket %s: %w", c.bucket, err)
	}
	return nil
}

func escapeKey(key string) string {
	parts := strings.Split(strings.TrimLeft(key, "/"), "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if strings.EqualFold(k, "host") || len(v) == 0 {
			continue
		}
		out[k] = strings.Join(v, ",")
	}
	return out
}
