package store

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"stock-ledger/core/storage/mocks"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func fixedArchiver(client *mocks.Client) *ObjectArchiver {
	a := NewObjectArchiver(client, "ledger", "history")
	a.now = func() time.Time { return time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC) }
	return a
}

func TestObjectArchiver_Archive(t *testing.T) {
	ctx := context.Background()
	events := historyEvents(3)

	client := new(mocks.Client)
	var doc HistoryArchive
	client.On("PutObject", ctx, "ledger",
		mock.MatchedBy(func(name string) bool {
			return strings.HasPrefix(name, "history/archive/20240501T123000Z-") && strings.HasSuffix(name, ".json")
		}),
		mock.Anything, mock.Anything,
		minio.PutObjectOptions{ContentType: "application/json"},
	).Run(func(args mock.Arguments) {
		data, err := io.ReadAll(args.Get(3).(io.Reader))
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(data, &doc))
	}).Return(minio.UploadInfo{}, nil)

	require.NoError(t, fixedArchiver(client).Archive(ctx, events))
	client.AssertExpectations(t)

	assert.Equal(t, "archive", doc.Kind)
	assert.Equal(t, 3, doc.Count)
	require.NotNil(t, doc.OldestAt)
	require.NotNil(t, doc.NewestAt)
	assert.True(t, events[0].Timestamp.Equal(*doc.OldestAt))
	assert.True(t, events[2].Timestamp.Equal(*doc.NewestAt))
	assert.Len(t, doc.Events, 3)
}

func TestObjectArchiver_ArchiveEmpty(t *testing.T) {
	client := new(mocks.Client)

	require.NoError(t, fixedArchiver(client).Archive(context.Background(), nil))
	client.AssertNotCalled(t, "PutObject", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestObjectArchiver_Export(t *testing.T) {
	ctx := context.Background()

	t.Run("ReturnsObjectName", func(t *testing.T) {
		client := new(mocks.Client)
		client.On("PutObject", ctx, "ledger", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(minio.UploadInfo{}, nil)

		name, err := fixedArchiver(client).Export(ctx, historyEvents(1))
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(name, "history/export/20240501T123000Z-"))
	})

	t.Run("UploadFails", func(t *testing.T) {
		client := new(mocks.Client)
		client.On("PutObject", ctx, "ledger", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(minio.UploadInfo{}, errors.New("access denied"))

		_, err := fixedArchiver(client).Export(ctx, historyEvents(1))
		assert.ErrorContains(t, err, "access denied")
	})
}

func TestObjectArchiver_List(t *testing.T) {
	ctx := context.Background()
	client := new(mocks.Client)

	ch := make(chan minio.ObjectInfo, 2)
	ch <- minio.ObjectInfo{Key: "history/archive/a.json"}
	ch <- minio.ObjectInfo{Key: "history/export/b.json"}
	close(ch)
	client.On("ListObjects", ctx, "ledger", minio.ListObjectsOptions{Prefix: "history/", Recursive: true}).
		Return((<-chan minio.ObjectInfo)(ch))

	keys, err := fixedArchiver(client).List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"history/archive/a.json", "history/export/b.json"}, keys)
}
