// Package storage provides an abstraction layer for object storage services.
//
// It wraps the MinIO Go client behind a small interface so the ledger can
// archive history to AWS S3 or a self-hosted MinIO instance, and so tests can
// swap in the mock from core/storage/mocks.
//
// # Operations
//
//   - BucketExists / MakeBucket: verify or create the target bucket (see EnsureBucket).
//   - PutObject: upload content (see PutJSON for JSON documents).
//   - GetObject: retrieve content as a stream.
//   - ListObjects: list objects under a prefix (see ListKeys).
//
// # Usage
//
//	client, err := storage.NewClient(cfg.Storage)
//	err = storage.EnsureBucket(ctx, client, cfg.Storage.Bucket, cfg.Storage.Region)
//	_, err = storage.PutJSON(ctx, client, cfg.Storage.Bucket, "history/export.json", events)
package storage
