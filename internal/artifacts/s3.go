package artifacts

import (
	"bytes"
	"context"
	"fmt"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config configures the S3 sink. Endpoint and PathStyle target MinIO and
// other S3-compatible stores.
type S3Config struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	PathStyle       bool
	AccessKeyID     string // optional; falls back to the default credentials chain
	SecretAccessKey string
}

// S3 publishes artifacts as objects under <prefix>/<run id>/<name>
type S3 struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3 creates an S3 sink from cfg
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, &Error{Artifact: "(sink)", Message: "s3 bucket required"}
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, &Error{Artifact: "(sink)", Message: "load aws config", Cause: err}
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewS3WithClient(client, cfg.Bucket, cfg.Prefix), nil
}

// NewS3WithClient wraps an existing client
func NewS3WithClient(client *s3.Client, bucket, prefix string) *S3 {
	return &S3{client: client, bucket: bucket, prefix: prefix}
}

// Describe returns the bucket URI
func (s *S3) Describe() string { return fmt.Sprintf("s3://%s/%s", s.bucket, joinKey(s.prefix)) }

// Publish uploads every artifact. Objects are written under a run-scoped
// prefix so a failed upload never replaces the objects of an earlier run.
func (s *S3) Publish(ctx context.Context, runID string, arts []Artifact) ([]Location, error) {
	if err := checkNames(arts); err != nil {
		return nil, err
	}
	locs := make([]Location, 0, len(arts))
	for _, a := range arts {
		key := joinKey(s.prefix, runID, a.Name)
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(a.Data),
			ContentType: aws.String(a.ContentType),
			Metadata: map[string]string{
				"run-id": runID,
				"sha256": a.SHA256(),
				"rows":   fmt.Sprintf("%d", a.Rows),
			},
		})
		if err != nil {
			return nil, &Error{Artifact: a.Name, Message: "put object " + key, Cause: err}
		}
		locs = append(locs, locationOf(a, fmt.Sprintf("s3://%s/%s", s.bucket, key)))
	}
	return locs, nil
}
