// Package origin wraps an S3-compatible object store client with the
// narrow GetObject/HeadObject contract the fetch pipeline (C8) needs, plus
// classification of origin errors into the discriminators §6 requires.
package origin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	cfgpkg "github.com/trickster-vod/edge/internal/config"
)

// ErrorKind classifies an origin failure for HTTP status translation (§6).
type ErrorKind int

// The error kinds the fetch pipeline and request handler distinguish.
const (
	ErrUnknown ErrorKind = iota
	ErrNoSuchKey
	ErrNoSuchBucket
	ErrAccessDenied
	ErrUnreachable
)

// Error wraps an origin failure with its classified Kind.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("origin: %s", e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Classify inspects err (typically returned from Get/Head) and reports its ErrorKind.
func Classify(err error) ErrorKind {
	var oe *Error
	if errors.As(err, &oe) {
		return oe.Kind
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey":
			return ErrNoSuchKey
		case "NoSuchBucket":
			return ErrNoSuchBucket
		case "AccessDenied", "Forbidden":
			return ErrAccessDenied
		}
	}
	return ErrUnknown
}

// Fetcher is the narrow GetObject/HeadObject contract the fetch pipeline
// depends on, satisfied by *Client and by fakes in tests.
type Fetcher interface {
	Get(ctx context.Context, bucket, key, rangeHeader string) (*Object, error)
	Head(ctx context.Context, bucket, key string) (*Object, error)
}

// Object is the result of a Get: a streamed body plus the metadata the
// fetch pipeline needs to compose response headers.
type Object struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
	ETag          string
	LastModified  time.Time
	ContentRange  string
	AcceptRanges  string
}

// Client fetches objects from an S3-compatible origin (C8's upstream).
type Client struct {
	s3      *s3.Client
	bucket  string
	timeout time.Duration
}

// New builds a Client from the Running Configuration's OriginConfig.
func New(ctx context.Context, cfg cfgpkg.OriginConfig) (*Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("origin: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return &Client{s3: client, bucket: cfg.DefaultBucket, timeout: time.Duration(cfg.TimeoutSecs) * time.Second}, nil
}

var _ Fetcher = (*Client)(nil)

// withTimeout derives a per-request deadline from the configured origin
// timeout, chained off the caller's context so request cancellation still
// propagates. A non-positive timeout leaves ctx unbounded.
func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

// cancelOnCloseBody defers releasing the per-request timeout context until
// the streamed body is closed, so the deadline covers the full read instead
// of firing the instant GetObject returns its headers.
type cancelOnCloseBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnCloseBody) Close() error {
	defer b.cancel()
	return b.ReadCloser.Close()
}

// Get streams an object, optionally range-restricted. bucket may be empty
// to use the configured default bucket.
func (c *Client) Get(ctx context.Context, bucket, key, rangeHeader string) (*Object, error) {
	if bucket == "" {
		bucket = c.bucket
	}
	in := &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)}
	if rangeHeader != "" {
		in.Range = aws.String(rangeHeader)
	}

	cctx, cancel := c.withTimeout(ctx)
	out, err := c.s3.GetObject(cctx, in)
	if err != nil {
		cancel()
		return nil, classifyWrap(err)
	}

	obj := &Object{Body: &cancelOnCloseBody{ReadCloser: out.Body, cancel: cancel}}
	if out.ContentType != nil {
		obj.ContentType = *out.ContentType
	}
	if out.ContentLength != nil {
		obj.ContentLength = *out.ContentLength
	}
	if out.ETag != nil {
		obj.ETag = *out.ETag
	}
	if out.LastModified != nil {
		obj.LastModified = *out.LastModified
	}
	if out.ContentRange != nil {
		obj.ContentRange = *out.ContentRange
	}
	if out.AcceptRanges != nil {
		obj.AcceptRanges = *out.AcceptRanges
	}
	return obj, nil
}

// Head fetches metadata only, used by the request handler's HEAD mirror.
func (c *Client) Head(ctx context.Context, bucket, key string) (*Object, error) {
	if bucket == "" {
		bucket = c.bucket
	}
	cctx, cancel := c.withTimeout(ctx)
	defer cancel()
	out, err := c.s3.HeadObject(cctx, &s3.HeadObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return nil, classifyWrap(err)
	}
	obj := &Object{}
	if out.ContentType != nil {
		obj.ContentType = *out.ContentType
	}
	if out.ContentLength != nil {
		obj.ContentLength = *out.ContentLength
	}
	if out.ETag != nil {
		obj.ETag = *out.ETag
	}
	if out.LastModified != nil {
		obj.LastModified = *out.LastModified
	}
	if out.AcceptRanges != nil {
		obj.AcceptRanges = *out.AcceptRanges
	}
	return obj, nil
}

func classifyWrap(err error) error {
	return &Error{Kind: Classify(err), Err: err}
}

// StatusFor maps an ErrorKind to the HTTP status the request handler
// should respond with (§6 error classification table).
func StatusFor(kind ErrorKind) int {
	switch kind {
	case ErrNoSuchKey:
		return http.StatusNotFound
	case ErrNoSuchBucket:
		return http.StatusNotFound
	case ErrAccessDenied:
		return http.StatusForbidden
	case ErrUnreachable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
