package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/deusflow/feedgen/internal/logger"
	"github.com/deusflow/feedgen/internal/news"
)

// ObjectPutter is the part of the S3 client the uploader needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Uploader struct {
	client ObjectPutter
}

// NewS3Uploader loads the default AWS configuration for region.
func NewS3Uploader(ctx context.Context, region string) (*S3Uploader, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}
	return &S3Uploader{client: s3.NewFromConfig(cfg)}, nil
}

func NewS3UploaderWithClient(client ObjectPutter) *S3Uploader {
	return &S3Uploader{client: client}
}

// ParseDestination splits "s3://bucket/prefix" into bucket and a prefix ending in
// "/". Any other value is taken as a bare bucket name.
func ParseDestination(dest string) (bucket, prefix string, err error) {
	if !strings.HasPrefix(dest, "s3://") {
		if dest == "" {
			return "", "", fmt.Errorf("empty S3 destination")
		}
		return dest, "", nil
	}
	u, err := url.Parse(dest)
	if err != nil {
		return "", "", fmt.Errorf("invalid S3 destination %q: %w", dest, err)
	}
	if u.Host == "" {
		return "", "", fmt.Errorf("invalid S3 destination %q: missing bucket", dest)
	}
	prefix = strings.TrimLeft(u.Path, "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return u.Host, prefix, nil
}

// UploadFeed stores the feed as feed<id>_<locale>.json under dest and returns the
// s3:// URI of the object.
func (u *S3Uploader) UploadFeed(ctx context.Context, dest string, clusterID int, locale string, feed []news.FeedItem) (string, error) {
	bucket, prefix, err := ParseDestination(dest)
	if err != nil {
		return "", err
	}
	if feed == nil {
		feed = []news.FeedItem{}
	}
	data, err := json.MarshalIndent(feed, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal feed: %w", err)
	}

	key := prefix + FeedFileName(clusterID, locale)
	uri := "s3://" + bucket + "/" + key
	logger.Info("uploading feed to S3", "cluster_id", clusterID, "items", len(feed), "uri", uri)

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload object to S3: %w", err)
	}
	return uri, nil
}
