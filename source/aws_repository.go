package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sardine-ai/go-config-sync/model"
)

// AwsS3Repository stores the configuration as a JSON object within an S3
// bucket.
type AwsS3Repository struct {
	Name          string     // Name of the repository
	BucketName    string     // Name of the S3 bucket
	ObjectName    string     // Key of the JSON object within the bucket
	Client        *s3.Client // S3 client instance
	clientOnce    sync.Once  // Ensures client is initialized only once
	clientInitErr error      // Stores error from client initialization
}

// GetName returns the name of the repository.
func (a *AwsS3Repository) GetName() string {
	return a.Name
}

func (a *AwsS3Repository) client(ctx context.Context) (*s3.Client, error) {
	if a.Client == nil {
		a.clientOnce.Do(func() {
			cfg, err := config.LoadDefaultConfig(ctx)
			if err != nil {
				a.clientInitErr = fmt.Errorf("failed to load AWS config: %w", err)
				return
			}
			a.Client = s3.NewFromConfig(cfg)
		})
		if a.clientInitErr != nil {
			return nil, a.clientInitErr
		}
	}
	return a.Client, nil
}

// Load reads the JSON object from the bucket.
func (a *AwsS3Repository) Load(ctx context.Context) (model.Config, error) {
	client, err := a.client(ctx)
	if err != nil {
		return model.Config{}, err
	}

	result, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.BucketName),
		Key:    aws.String(a.ObjectName),
	})
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return model.Config{}, ErrNotFound
	}
	if err != nil {
		return model.Config{}, err
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return model.Config{}, err
	}
	return model.UnmarshalStored(data)
}

// Save uploads the configuration, replacing the object.
func (a *AwsS3Repository) Save(ctx context.Context, cfg model.Config) error {
	client, err := a.client(ctx)
	if err != nil {
		return err
	}
	data, err := encode(cfg)
	if err != nil {
		return err
	}

	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.BucketName),
		Key:           aws.String(a.ObjectName),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("upload config: %w", err)
	}
	return nil
}
