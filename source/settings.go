package source

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"google.golang.org/api/option"
)

// Settings selects and configures a Repository.
type Settings struct {
	Type      string `yaml:"type"`       // file, memory, gcs, s3 or git
	Path      string `yaml:"path"`       // File path, or path within the git work tree
	Dir       string `yaml:"dir"`        // Git work tree directory
	Bucket    string `yaml:"bucket"`     // GCS or S3 bucket
	Object    string `yaml:"object"`     // GCS object name or S3 key
	Region    string `yaml:"region"`     // AWS region
	Endpoint  string `yaml:"endpoint"`   // Custom S3 or GCS endpoint
	AccessKey string `yaml:"access_key"` // Static AWS access key
	SecretKey string `yaml:"secret_key"` // Static AWS secret key
	Watch     bool   `yaml:"watch"`      // Reload when the file changes outside the backend
}

// NewRepository creates the Repository described by s.
func NewRepository(ctx context.Context, s Settings) (Repository, error) {
	switch s.Type {
	case "", "file":
		return NewFileRepository(s.Path)
	case "memory":
		return NewMemoryRepository(nil), nil
	case "git":
		if s.Dir == "" {
			return nil, fmt.Errorf("git repository requires dir")
		}
		return NewGitRepository(s.Dir, s.Path)
	case "gcs":
		if s.Bucket == "" || s.Object == "" {
			return nil, fmt.Errorf("gcs repository requires bucket and object")
		}
		var opts []option.ClientOption
		if s.Endpoint != "" {
			opts = append(opts, option.WithEndpoint(s.Endpoint), option.WithoutAuthentication())
		}
		client, err := storage.NewClient(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("create storage client: %w", err)
		}
		return &GcpStorageRepository{Name: "gcs", BucketName: s.Bucket, ObjectName: s.Object, Client: client}, nil
	case "s3":
		if s.Bucket == "" || s.Object == "" {
			return nil, fmt.Errorf("s3 repository requires bucket and object")
		}
		client, err := newS3Client(ctx, s)
		if err != nil {
			return nil, err
		}
		return &AwsS3Repository{Name: "s3", BucketName: s.Bucket, ObjectName: s.Object, Client: client}, nil
	default:
		return nil, fmt.Errorf("unknown repository type %q", s.Type)
	}
}

func newS3Client(ctx context.Context, s Settings) (*s3.Client, error) {
	var loadOpts []func(*config.LoadOptions) error
	if s.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(s.Region))
	}
	if s.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s.AccessKey, s.SecretKey, "")))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if s.Endpoint != "" {
			o.BaseEndpoint = aws.String(s.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}
