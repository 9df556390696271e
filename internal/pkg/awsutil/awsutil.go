// Package awsutil loads AWS SDK configuration for the S3 consumers.
package awsutil

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "github.com/ignite/campaign-sheet-sync/internal/config"
)

// LoadConfig builds an aws.Config. Static keys win over a named profile;
// with neither, the default credential chain (env, IAM role) applies.
func LoadConfig(ctx context.Context, cfg appconfig.AWSConfig) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	switch {
	case cfg.AccessKey != "" && cfg.SecretKey != "":
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	case cfg.GetProfile() != "":
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.GetProfile()))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}
	return awsCfg, nil
}

// NewS3Client returns an S3 client for the configured account.
func NewS3Client(ctx context.Context, cfg appconfig.AWSConfig) (*s3.Client, error) {
	awsCfg, err := LoadConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(awsCfg), nil
}
