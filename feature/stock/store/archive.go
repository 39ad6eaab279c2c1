package store

import (
	"context"
	"fmt"
	"path"
	"time"

	"stock-ledger/core/ledger"
	"stock-ledger/core/storage"

	"github.com/google/uuid"
)

// HistoryArchive is the JSON document written per archive or export.
type HistoryArchive struct {
	Kind      string                `json:"kind"`
	CreatedAt time.Time             `json:"created_at"`
	Count     int                   `json:"count"`
	OldestAt  *time.Time            `json:"oldest_at,omitempty"`
	NewestAt  *time.Time            `json:"newest_at,omitempty"`
	Events    []ledger.HistoryEvent `json:"events"`
}

// ObjectArchiver writes history to object storage under prefix/archive and
// prefix/export.
type ObjectArchiver struct {
	client storage.Client
	bucket string
	prefix string
	now    func() time.Time
}

// NewObjectArchiver creates an archiver writing to bucket.
func NewObjectArchiver(client storage.Client, bucket, prefix string) *ObjectArchiver {
	return &ObjectArchiver{
		client: client,
		bucket: bucket,
		prefix: prefix,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Archive implements Archiver.
func (a *ObjectArchiver) Archive(ctx context.Context, events []ledger.HistoryEvent) error {
	if len(events) == 0 {
		return nil
	}
	_, err := a.write(ctx, "archive", events)
	return err
}

// Export writes a full snapshot of events and returns the object name.
func (a *ObjectArchiver) Export(ctx context.Context, events []ledger.HistoryEvent) (string, error) {
	return a.write(ctx, "export", events)
}

// List returns the archive and export object names.
func (a *ObjectArchiver) List(ctx context.Context) ([]string, error) {
	return storage.ListKeys(ctx, a.client, a.bucket, a.prefix+"/")
}

func (a *ObjectArchiver) write(ctx context.Context, kind string, events []ledger.HistoryEvent) (string, error) {
	now := a.now()
	doc := HistoryArchive{
		Kind:      kind,
		CreatedAt: now,
		Count:     len(events),
		Events:    events,
	}
	if len(events) > 0 {
		oldest, newest := events[0].Timestamp, events[0].Timestamp
		for _, ev := range events[1:] {
			if ev.Timestamp.Before(oldest) {
				oldest = ev.Timestamp
			}
			if ev.Timestamp.After(newest) {
				newest = ev.Timestamp
			}
		}
		doc.OldestAt, doc.NewestAt = &oldest, &newest
	}

	name := path.Join(a.prefix, kind, fmt.Sprintf("%s-%s.json", now.Format("20060102T150405Z"), uuid.NewString()[:8]))
	if _, err := storage.PutJSON(ctx, a.client, a.bucket, name, doc); err != nil {
		return "", err
	}
	return name, nil
}
