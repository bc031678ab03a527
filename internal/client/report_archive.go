package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/svaia/api/internal/config"
)

// ArchivedReport is a finished report copied to object storage.
type ArchivedReport struct {
	Owner   string
	Project string
	Name    string
	Content string
}

// ReportArchive keeps a copy of every finished report outside Redis.
type ReportArchive interface {
	// Archive stores r and returns the URL it can be downloaded from.
	Archive(ctx context.Context, r ArchivedReport) (string, error)
}

// R2Archive writes reports to a Cloudflare R2 bucket through the S3 API.
type R2Archive struct {
	s3        *s3.Client
	bucket    string
	publicURL string
}

// NewR2Archive returns an error when the R2 credentials are incomplete; the
// worker then runs without an archive.
func NewR2Archive(ctx context.Context, cfg *config.R2Config) (*R2Archive, error) {
	if cfg.AccountID == "" || cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" || cfg.BucketName == "" {
		return nil, errors.New("R2 configuration incomplete")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load R2 credentials: %w", err)
	}

	endpoint := fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)
	return &R2Archive{
		s3: s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		}),
		bucket:    cfg.BucketName,
		publicURL: strings.TrimRight(cfg.PublicURL, "/"),
	}, nil
}

func (a *R2Archive) Archive(ctx context.Context, r ArchivedReport) (string, error) {
	key := ReportKey(r.Owner, r.Name)
	_, err := a.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        strings.NewReader(r.Content),
		ContentType: aws.String("text/markdown; charset=utf-8"),
		Metadata: map[string]string{
			"owner":   r.Owner,
			"project": url.QueryEscape(r.Project),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to archive %s: %w", key, err)
	}
	return a.URL(key), nil
}

// URL is where key is served from: the public bucket domain when one is
// configured, the S3 endpoint path otherwise.
func (a *R2Archive) URL(key string) string {
	if a.publicURL != "" {
		return a.publicURL + "/" + key
	}
	return fmt.Sprintf("https://%s.r2.cloudflarestorage.com/%s", a.bucket, key)
}

// ReportKey is the object key a project's report is archived under.
func ReportKey(email, reportName string) string {
	return "reports/" + url.PathEscape(email) + "/" + reportName
}
