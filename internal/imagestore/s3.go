package imagestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/desacikupa/umkmdesa/internal/telemetry/tracing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
)

var _ Store = (*S3Store)(nil)

type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type S3Params struct {
	Endpoint      string
	Region        string
	Bucket        string
	AccessKey     string
	SecretKey     string
	PublicBaseURL string
}

// S3Store keeps images in an S3 compatible bucket (AWS, MinIO, R2, ...).
type S3Store struct {
	client        s3API
	bucket        string
	publicBaseURL string
}

func NewS3Store(ctx context.Context, params S3Params) (*S3Store, error) {
	if params.Bucket == "" || params.Region == "" {
		return nil, errors.New("s3 bucket and region must be set")
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(params.Region),
		config.WithHTTPClient(&http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}),
	}
	if params.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(params.AccessKey, params.SecretKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if params.Endpoint != "" {
			o.BaseEndpoint = aws.String(params.Endpoint)
			o.UsePathStyle = true
		}
	})

	publicBaseURL := params.PublicBaseURL
	if publicBaseURL == "" {
		publicBaseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", params.Bucket, params.Region)
	}

	return newS3Store(client, params.Bucket, publicBaseURL), nil
}

func newS3Store(client s3API, bucket, publicBaseURL string) *S3Store {
	return &S3Store{
		client:        client,
		bucket:        bucket,
		publicBaseURL: publicBaseURL,
	}
}

func (s *S3Store) Put(ctx context.Context, key, contentType string, size int64, r io.Reader) (_ string, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "s3Store.put")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("file.key", key))
	span.SetAttributes(attribute.Int64("file.size", size))

	if err := validateKey(key); err != nil {
		return "", err
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   r,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if size > 0 {
		input.ContentLength = aws.Int64(size)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("s3 put object [%s]: %w", key, err)
	}

	log.Debugf("s3 store: saved [%s] to bucket [%s]", key, s.bucket)
	return joinURL(s.publicBaseURL, key), nil
}

func (s *S3Store) Delete(ctx context.Context, url string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "s3Store.delete")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	key, err := keyFromURL(s.publicBaseURL, url)
	if err != nil {
		return err
	}

	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3 delete object [%s]: %w", key, err)
	}

	log.Debugf("s3 store: removed [%s] from bucket [%s]", key, s.bucket)
	return nil
}
