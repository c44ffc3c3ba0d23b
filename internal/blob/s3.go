package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Store uploads proof photos to an S3 bucket.
type S3Store struct {
	client     s3API
	bucket     string
	region     string
	publicBase string
}

func NewS3Store(ctx context.Context, region, bucket, publicBase string) (*S3Store, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}
	// Bodies are streamed through a progress reader which is not seekable,
	// so the payload is sent unsigned.
	client := s3.NewFromConfig(cfg, s3.WithAPIOptions(v4.SwapComputePayloadSHA256ForUnsignedPayloadMiddleware))
	return &S3Store{client: client, bucket: bucket, region: region, publicBase: strings.TrimRight(publicBase, "/")}, nil
}

func (s *S3Store) Upload(ctx context.Context, name, contentType string, data []byte) <-chan Progress {
	out := newEvents()
	go func() {
		defer close(out)
		if len(data) == 0 {
			out <- Progress{Err: ErrEmpty}
			return
		}
		key := newKey(name)
		pr := newProgressReader(bytes.NewReader(data), int64(len(data)), func(p int) {
			// the final 100 is reported with the handle once S3 has acknowledged
			if p < 100 {
				out <- Progress{Percent: p}
			}
		})
		pr.start()
		in := &s3.PutObjectInput{
			Bucket:        aws.String(s.bucket),
			Key:           aws.String(key),
			Body:          pr,
			ContentLength: aws.Int64(int64(len(data))),
		}
		if contentType != "" {
			in.ContentType = aws.String(contentType)
		}
		if _, err := s.client.PutObject(ctx, in); err != nil {
			out <- Progress{Err: fmt.Errorf("unable to upload file to S3: %w", err)}
			return
		}
		h := s.Bind(Handle{Key: key, URL: s.url(key), ContentType: contentType})
		out <- Progress{Percent: 100, Handle: &h}
	}()
	return out
}

func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	res, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer res.Body.Close()
	return io.ReadAll(res.Body)
}

func (s *S3Store) Bind(h Handle) Handle {
	h.fetch = s.Get
	if h.URL == "" {
		h.URL = s.url(h.Key)
	}
	return h
}

func (s *S3Store) url(key string) string {
	if s.publicBase != "" {
		return s.publicBase + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
}
