package dashboard

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/jdziat/simple-report-runs/pkg/core"
)

// ContentType is the media type of published snapshots.
const ContentType = "application/msgpack"

// S3API is the subset of the S3 client the publisher needs. The uploader
// only calls the multipart methods for large bodies.
type S3API interface {
	manager.UploadAPIClient
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Config locates the bucket.
type S3Config struct {
	Bucket string
	Prefix string
	Region string
	// Endpoint overrides the S3 endpoint, e.g. for MinIO. Path-style
	// addressing is used when set.
	Endpoint string
	// AccessKeyID and SecretAccessKey override the default credential
	// chain when both are set.
	AccessKeyID     string
	SecretAccessKey string
}

// S3Publisher writes snapshots to <prefix>/<job_type>/<date>.msgpack.
type S3Publisher struct {
	client   S3API
	uploader *manager.Uploader
	bucket   string
	prefix   string
	log      zerolog.Logger
}

var (
	_ core.CacheSignaler = (*S3Publisher)(nil)
	_ Reader             = (*S3Publisher)(nil)
)

// NewS3Client builds an S3 client from the default AWS config chain.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("dashboard: load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// NewS3Publisher returns a publisher writing to cfg.Bucket through client.
func NewS3Publisher(client S3API, cfg S3Config, log zerolog.Logger) (*S3Publisher, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("dashboard: s3 bucket is empty")
	}
	return &S3Publisher{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
		prefix:   strings.Trim(cfg.Prefix, "/"),
		log:      log.With().Str("component", "dashboard_s3").Logger(),
	}, nil
}

// ObjectKey returns the object key for a run key.
func (p *S3Publisher) ObjectKey(key core.RunKey) string {
	return path.Join(p.prefix, string(key.JobType), key.ScheduledDate+".msgpack")
}

// Warm uploads s, replacing any earlier snapshot for its key.
func (p *S3Publisher) Warm(ctx context.Context, s *core.Snapshot) error {
	if s == nil {
		return nil
	}
	body, err := msgpack.Marshal(s)
	if err != nil {
		return fmt.Errorf("dashboard: encode snapshot %s: %w", s.Key, err)
	}
	objKey := p.ObjectKey(s.Key)
	_, err = p.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(objKey),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(ContentType),
		Metadata: map[string]string{
			"run-id": s.RunID,
			"status": string(s.Status),
		},
	})
	if err != nil {
		return fmt.Errorf("dashboard: upload %s: %w", objKey, err)
	}
	p.log.Debug().Str("key", objKey).Int("bytes", len(body)).Msg("snapshot published")
	return nil
}

// Invalidate deletes the snapshot object for key.
func (p *S3Publisher) Invalidate(ctx context.Context, key core.RunKey) error {
	objKey := p.ObjectKey(key)
	_, err := p.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(objKey),
	})
	if err != nil {
		return fmt.Errorf("dashboard: delete %s: %w", objKey, err)
	}
	p.log.Debug().Str("key", objKey).Msg("snapshot removed")
	return nil
}

// Snapshot implements Reader.
func (p *S3Publisher) Snapshot(ctx context.Context, key core.RunKey) (*core.Snapshot, error) {
	objKey := p.ObjectKey(key)
	out, err := p.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(objKey),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("dashboard: get %s: %w", objKey, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("dashboard: read %s: %w", objKey, err)
	}
	var s core.Snapshot
	if err := msgpack.Unmarshal(body, &s); err != nil {
		return nil, fmt.Errorf("dashboard: decode %s: %w", objKey, err)
	}
	return &s, nil
}
