package cloudwriter

import (
	"fmt"

	"vanrank/internal/models"
)

// CloudWriter buffers an exported object and flushes it on Close.
type CloudWriter interface {
	Write(data []byte) (int, error)
	Close() error
}

// CloudWriterFactory creates writers bound to one object path.
type CloudWriterFactory interface {
	NewWriter(bucket, objectPath string) (CloudWriter, error)
}

// NewFactory dispatches on the configured provider. Only S3 is supported;
// the destination config keeps the provider name so adding GCS later is a
// config change plus one factory.
func NewFactory(cfg models.CloudStorageConfig) (CloudWriterFactory, error) {
	switch cfg.Provider {
	case "s3":
		return NewS3WriterFactory(cfg.Region)
	default:
		return nil, fmt.Errorf("unsupported cloud storage provider: %q", cfg.Provider)
	}
}
