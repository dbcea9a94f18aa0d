package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Config describes the bucket exports go to.
type S3Config struct {
	Region    string
	Bucket    string
	Endpoint  string
	PathStyle bool
	AccessKey string
	SecretKey string
}

// NewS3Client builds a client from static credentials. Without keys requests are anonymous.
func NewS3Client(cfg S3Config) *s3.Client {
	awsCfg := aws.Config{Region: cfg.Region}
	if cfg.AccessKey != "" {
		creds := aws.Credentials{AccessKeyID: cfg.AccessKey, SecretAccessKey: cfg.SecretKey, Source: "env"}
		awsCfg.Credentials = aws.NewCredentialsCache(aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return creds, nil
		}))
	} else {
		awsCfg.Credentials = aws.AnonymousCredentials{}
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})
}

type S3Provider struct {
	client *s3.Client
	bucket string
}

func NewS3Provider(client *s3.Client, bucket string) *S3Provider {
	return &S3Provider{client: client, bucket: bucket}
}

// Create pipes written bytes into a multipart upload running in the background.
func (p *S3Provider) Create(ctx context.Context, key string) (Writer, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}
	reader, writer := io.Pipe()
	done := make(chan error, 1)

	go func() {
		uploader := manager.NewUploader(p.client, func(u *manager.Uploader) {
			u.PartSize = 10 * 1024 * 1024
			u.Concurrency = 5
		})

		slog.Info("starting S3 upload", "bucket", p.bucket, "key", key)
		_, err := uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket: aws.String(p.bucket),
			Key:    aws.String(key),
			Body:   reader,
		})
		// Unblock a writer still pushing bytes into a failed upload.
		reader.CloseWithError(err)
		done <- err
	}()

	return &s3Writer{pw: writer, done: done, key: key}, nil
}

func (p *S3Provider) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := p.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var missing *types.NoSuchKey
		if errors.As(err, &missing) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, err
	}
	return out.Body, nil
}

func (p *S3Provider) URL(key string) string {
	return fmt.Sprintf("s3://%s/%s", p.bucket, key)
}

type s3Writer struct {
	pw   *io.PipeWriter
	done <-chan error
	key  string
}

func (w *s3Writer) Write(b []byte) (int, error) {
	return w.pw.Write(b)
}

func (w *s3Writer) Commit() error {
	w.pw.Close()
	if err := <-w.done; err != nil {
		slog.Error("S3 upload failed", "key", w.key, "error", err)
		return fmt.Errorf("s3 upload failed: %w", err)
	}
	slog.Info("S3 upload finished", "key", w.key)
	return nil
}

// Abort fails the pipe, which makes the uploader abandon the multipart upload.
func (w *s3Writer) Abort(err error) {
	if err == nil {
		err = errors.New("upload aborted")
	}
	w.pw.CloseWithError(err)
	<-w.done
}
