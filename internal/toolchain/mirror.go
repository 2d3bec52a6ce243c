package toolchain

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"adibuild/internal/fetch"
)

// Mirror serves toolchain archives by path relative to its root.
type Mirror interface {
	Name() string
	Fetch(ctx context.Context, relPath string, w io.Writer) error
}

// HTTPMirror is a plain HTTP(S) download host.
type HTTPMirror struct {
	// Base ends with a slash; the relative path is appended verbatim.
	Base   string
	Client *http.Client
	Quiet  bool
}

func (m *HTTPMirror) Name() string { return m.Base }

func (m *HTTPMirror) Fetch(ctx context.Context, relPath string, w io.Writer) error {
	_, err := fetch.ToWriter(ctx, m.Base+relPath, w, fetch.Options{
		Quiet:       m.Quiet,
		Client:      m.Client,
		Description: path.Base(relPath),
	})
	return err
}

// S3Config points at an S3-compatible bucket holding a copy of the upstream
// download tree.
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// Enabled reports whether enough is configured to build a client.
func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

// S3Mirror fetches archives from an S3-compatible bucket.
type S3Mirror struct {
	Client *s3.Client
	Bucket string
	Prefix string
}

// NewS3Mirror builds a path-style S3 client. Static credentials are used when
// both keys are set, otherwise the default AWS credential chain applies.
func NewS3Mirror(ctx context.Context, cfg S3Config) (*S3Mirror, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 mirror: bucket is required")
	}
	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	options := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		options = append(options, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to load s3 mirror config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = true
	})

	return &S3Mirror{
		Client: client,
		Bucket: cfg.Bucket,
		Prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

func (m *S3Mirror) Name() string {
	if m.Prefix == "" {
		return "s3://" + m.Bucket
	}
	return "s3://" + m.Bucket + "/" + m.Prefix
}

func (m *S3Mirror) key(relPath string) string {
	if m.Prefix == "" {
		return relPath
	}
	return m.Prefix + "/" + relPath
}

func (m *S3Mirror) Fetch(ctx context.Context, relPath string, w io.Writer) error {
	out, err := m.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.Bucket),
		Key:    aws.String(m.key(relPath)),
	})
	if err != nil {
		return fmt.Errorf("s3 get %s failed: %w", m.key(relPath), err)
	}
	defer out.Body.Close()

	if _, err := io.Copy(w, out.Body); err != nil {
		return fmt.Errorf("failed to read s3 object %s: %w", m.key(relPath), err)
	}
	return nil
}

// MirrorsFor returns one HTTP mirror per base followed by the S3 mirror, if
// any.
func MirrorsFor(bases []string, s3m *S3Mirror, quiet bool) []Mirror {
	var out []Mirror
	client := fetch.NewHTTPClient()
	for _, base := range bases {
		out = append(out, &HTTPMirror{Base: base, Client: client, Quiet: quiet})
	}
	if s3m != nil {
		out = append(out, s3m)
	}
	return out
}
