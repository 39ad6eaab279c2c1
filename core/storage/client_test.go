package storage_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"stock-ledger/core/storage"
	"stock-ledger/core/storage/mocks"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		cfg := storage.Config{
			Endpoint:  "localhost:9000",
			AccessKey: "testkey",
			SecretKey: "testsecret",
			Bucket:    "ledger",
			Region:    "us-east-1",
		}

		client, err := storage.NewClient(cfg)
		assert.NoError(t, err)
		assert.NotNil(t, client)
	})

	t.Run("EndpointWithHTTPS", func(t *testing.T) {
		cfg := storage.Config{
			Endpoint:  "https://s3.amazonaws.com",
			AccessKey: "testkey",
			SecretKey: "testsecret",
			UseSSL:    true,
			Region:    "us-east-1",
		}

		client, err := storage.NewClient(cfg)
		assert.NoError(t, err)
		assert.NotNil(t, client)
	})
}

func TestEnsureBucket(t *testing.T) {
	ctx := context.Background()

	t.Run("Exists", func(t *testing.T) {
		client := new(mocks.Client)
		client.On("BucketExists", ctx, "ledger").Return(true, nil)

		require.NoError(t, storage.EnsureBucket(ctx, client, "ledger", ""))
		client.AssertNotCalled(t, "MakeBucket", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Creates", func(t *testing.T) {
		client := new(mocks.Client)
		client.On("BucketExists", ctx, "ledger").Return(false, nil)
		client.On("MakeBucket", ctx, "ledger", minio.MakeBucketOptions{Region: "eu"}).Return(nil)

		require.NoError(t, storage.EnsureBucket(ctx, client, "ledger", "eu"))
		client.AssertExpectations(t)
	})

	t.Run("CheckFails", func(t *testing.T) {
		client := new(mocks.Client)
		client.On("BucketExists", ctx, "ledger").Return(false, errors.New("denied"))

		assert.ErrorContains(t, storage.EnsureBucket(ctx, client, "ledger", ""), "denied")
	})
}

func TestPutJSON(t *testing.T) {
	ctx := context.Background()
	client := new(mocks.Client)

	var body []byte
	client.On("PutObject", ctx, "ledger", "history/a.json", mock.Anything, mock.Anything,
		mock.MatchedBy(func(o minio.PutObjectOptions) bool { return o.ContentType == "application/json" })).
		Run(func(args mock.Arguments) {
			body, _ = io.ReadAll(args.Get(3).(io.Reader))
		}).
		Return(minio.UploadInfo{Key: "history/a.json"}, nil)

	info, err := storage.PutJSON(ctx, client, "ledger", "history/a.json", map[string]int{"n": 1})
	require.NoError(t, err)
	assert.Equal(t, "history/a.json", info.Key)
	assert.JSONEq(t, `{"n": 1}`, string(body))
}

func TestListKeys(t *testing.T) {
	ctx := context.Background()
	client := new(mocks.Client)

	ch := make(chan minio.ObjectInfo, 2)
	ch <- minio.ObjectInfo{Key: "history/1.json"}
	ch <- minio.ObjectInfo{Key: "history/2.json"}
	close(ch)
	client.On("ListObjects", ctx, "ledger", minio.ListObjectsOptions{Prefix: "history/", Recursive: true}).
		Return((<-chan minio.ObjectInfo)(ch))

	keys, err := storage.ListKeys(ctx, client, "ledger", "history/")
	require.NoError(t, err)
	assert.Equal(t, []string{"history/1.json", "history/2.json"}, keys)
}
