package store

import (
	"context"
	"time"
)

// Bucket names are logical, per spec §6: {models, inputs, outputs, cameras, datasets}.
const (
	BucketModels   = "models"
	BucketInputs   = "inputs"
	BucketOutputs  = "outputs"
	BucketCameras  = "cameras"
	BucketDatasets = "datasets"
)

// ObjectStore is the injected object store interface (spec §6).
type ObjectStore interface {
	Put(ctx context.Context, bucket, object string, data []byte, contentType string, metadata map[string]string) error
	Get(ctx context.Context, bucket, object string) ([]byte, error)
	GetToFile(ctx context.Context, bucket, object, path string) error
	Delete(ctx context.Context, bucket, object string) error
	List(ctx context.Context, bucket, prefix string) ([]string, error)
	PresignGet(ctx context.Context, bucket, object string, ttl time.Duration) (string, error)
}
