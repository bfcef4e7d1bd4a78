// internal/storage/s3.go
package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/FairForge/stevedore/internal/transfer"
)

// S3Store implements transfer.ObjectStore for S3-compatible backends.
type S3Store struct {
	client *s3.Client
	logger *zap.Logger
}

// NewS3Store creates an S3-backed object store. endpoint may be empty
// for AWS itself; set it for S3-compatible services.
func NewS3Store(ctx context.Context, endpoint, accessKey, secretKey, region string, logger *zap.Logger) (*S3Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if region == "" {
		region = "us-east-1"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if accessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{client: client, logger: logger}, nil
}

// Copy issues one server-side copy; no bytes route through this process.
func (s *S3Store) Copy(ctx context.Context, src, dst string) error {
	srcBucket, srcKey, err := ParseURI(src)
	if err != nil {
		return err
	}
	dstBucket, dstKey, err := ParseURI(dst)
	if err != nil {
		return err
	}

	_, err = s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(dstBucket),
		Key:        aws.String(dstKey),
		CopySource: aws.String(url.PathEscape(srcBucket + "/" + srcKey)),
	})
	if err != nil {
		return classify(err, src, "copy")
	}
	return nil
}

// Download fetches an object into localPath.
func (s *S3Store) Download(ctx context.Context, src, localPath string) error {
	bucket, key, err := ParseURI(src)
	if err != nil {
		return err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return classify(err, src, "download")
	}
	defer func() { _ = out.Body.Close() }()

	f, err := os.Create(localPath) // #nosec G304 - path is engine-owned staging
	if err != nil {
		return fmt.Errorf("create %s: %w", localPath, err)
	}

	if _, err := f.ReadFrom(out.Body); err != nil {
		_ = f.Close()
		return &transfer.BackendError{URI: src, Op: "download", Err: err}
	}
	return f.Close()
}

// Upload writes a local file to the destination object.
func (s *S3Store) Upload(ctx context.Context, localPath, dst string) error {
	bucket, key, err := ParseURI(dst)
	if err != nil {
		return err
	}

	f, err := os.Open(localPath) // #nosec G304 - path is engine-owned staging
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", localPath, err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
	})
	if err != nil {
		return classify(err, dst, "upload")
	}
	return nil
}

// Exists probes an object with a HEAD request.
func (s *S3Store) Exists(ctx context.Context, uri string) (bool, error) {
	bucket, key, err := ParseURI(uri)
	if err != nil {
		return false, err
	}

	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return false, nil
		}
		classified := classify(err, uri, "head")
		var nfe *transfer.NotFoundError
		if errors.As(classified, &nfe) {
			return false, nil
		}
		return false, classified
	}
	return true, nil
}

// classify maps S3 API errors into the engine's error taxonomy.
func classify(err error, uri, op string) error {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return &transfer.NotFoundError{URI: uri}
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NoSuchBucket", "NotFound":
			return &transfer.NotFoundError{URI: uri}
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "AllAccessDisabled":
			return &transfer.PermissionError{URI: uri, Op: op}
		}
	}

	return &transfer.BackendError{URI: uri, Op: op, Err: err}
}
