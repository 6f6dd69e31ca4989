package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/yuya-takeyama/mirrorsync/pkg/s3client"
	"github.com/yuya-takeyama/mirrorsync/pkg/storage"
)

// location is one side of a sync.
type location struct {
	provider storage.Provider
	// display is the prefix used when printing paths on this side.
	display string
}

// openLocation selects the object-storage provider for s3:// URIs and the
// filesystem provider for everything else.
func openLocation(ctx context.Context, raw string, cfg *Config) (*location, error) {
	if s3client.IsS3URI(raw) {
		bucket, prefix, err := s3client.ParseS3URI(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid S3 URI %q: %w", raw, err)
		}

		client, err := newS3Client(ctx, cfg)
		if err != nil {
			return nil, err
		}

		store := storage.NewObjectStorage(client, bucket, prefix, storage.WithHeadConcurrency(cfg.HeadConcurrency))
		display := "s3://" + store.Bucket() + "/"
		if store.Root() != "" {
			display += store.Root() + "/"
		}
		return &location{
			provider: store,
			display:  display,
		}, nil
	}

	root, err := filepath.Abs(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %q: %w", raw, err)
	}
	return &location{
		provider: storage.NewFileSystem(root),
		display:  raw,
	}, nil
}

func newS3Client(ctx context.Context, cfg *Config) (*s3client.AWSClient, error) {
	var configOpts []func(*config.LoadOptions) error
	if cfg.Profile != "" {
		configOpts = append(configOpts, config.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.Region != "" {
		configOpts = append(configOpts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		configOpts = append(configOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3client.NewAWSClient(awsCfg, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
		}
		o.UsePathStyle = cfg.PathStyle
	}), nil
}
