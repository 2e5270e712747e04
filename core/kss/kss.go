package kss

// kss package provides storage of large objects outside of the database. There are two
// drivers: a local file system and AWS S3

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key does not exist
var ErrNotFound = errors.New("key not found")

// Driver defines the interface for the KSS service
type Driver interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	ListAllWithPrefix(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, key string) error
}

// Presigner is implemented by drivers that can hand out temporary download URLs
type Presigner interface {
	GetPreSignedURL(ctx context.Context, key string, expireIn time.Duration) (string, error)
}

// DriverType represents the different type of KSS Drivers
type DriverType string

// DriverTypeLocal is the local filesystem implementation of the KSS service
const DriverTypeLocal DriverType = "Local"

// DriverTypeAWSS3 is the AWS S3 implementation of the KSS service
const DriverTypeAWSS3 DriverType = "AWSS3"

// None is used when there is no KSS implementation
const None DriverType = ""

// Configuration contains the configuration for the KSS service
type Configuration struct {
	DriverType         DriverType `env:"KSS_DRIVER"`
	LocalConfiguration LocalConfiguration
	S3Configuration    S3Configuration
}

// LocalConfiguration contains the configuration for the local filesystem KSS service
type LocalConfiguration struct {
	BasePath string `env:"KSS_LOCAL_PATH"`
}

// S3Configuration contains the configuration for the S3 KSS service. Without AccessID the
// default AWS credential chain is used.
type S3Configuration struct {
	AccessID      string `env:"KSS_S3_ACCESS_ID"`
	AccessKey     string `env:"KSS_S3_ACCESS_KEY"`
	AWSBucketName string `env:"KSS_S3_BUCKET"`
	AWSRegion     string `env:"KSS_S3_REGION,default=eu-central-1"`
	KeyPrefix     string `env:"KSS_S3_KEY_PREFIX"`
	// Endpoint overrides the S3 endpoint, e.g. for minio
	Endpoint string `env:"KSS_S3_ENDPOINT"`
}

// New creates the driver selected by the configuration. It returns nil for None.
func New(ctx context.Context, config Configuration) (Driver, error) {
	switch config.DriverType {
	case DriverTypeLocal:
		f, err := NewLocalFilesystem(config.LocalConfiguration)
		if err != nil {
			return nil, err
		}
		return f, nil
	case DriverTypeAWSS3:
		s, err := NewS3(ctx, config.S3Configuration)
		if err != nil {
			return nil, err
		}
		return s, nil
	case None:
		return nil, nil
	default:
		return nil, errors.New("unknown KSS driver type " + string(config.DriverType))
	}
}
