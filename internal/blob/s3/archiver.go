package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

const contentTypeJSONL = "application/x-ndjson"

// OpportunityArchiveStore is the part of the opportunity store the archiver
// needs.
type OpportunityArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.HedgeOpportunity, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// Archiver implements domain.Archiver. Rows are deleted from the store only
// after their upload succeeded.
type Archiver struct {
	writer   domain.BlobWriter
	store    OpportunityArchiveStore
	prune    bool
	partSize int64
}

// NewArchiver creates an Archiver. With prune set, archived rows are removed
// from the store.
func NewArchiver(writer domain.BlobWriter, store OpportunityArchiveStore, prune bool) *Archiver {
	return &Archiver{writer: writer, store: store, prune: prune, partSize: minPartSize}
}

// ArchiveOpportunities uploads every opportunity found before the cutoff to
// archive/opportunities/YYYY-MM-DD/<cutoff>.jsonl and returns the count.
func (a *Archiver) ArchiveOpportunities(ctx context.Context, before time.Time) (int64, error) {
	opps, err := a.store.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive opportunities query: %w", err)
	}
	if len(opps) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(opps)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive opportunities marshal: %w", err)
	}

	path := archivePath("opportunities", before)
	if int64(len(buf)) > a.partSize {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), a.partSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), contentTypeJSONL)
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive opportunities upload: %w", err)
	}

	count := int64(len(opps))
	if a.prune {
		if _, err := a.store.DeleteBefore(ctx, before); err != nil {
			return count, fmt.Errorf("s3blob: archive opportunities prune: %w", err)
		}
	}
	return count, nil
}

// archivePath partitions archive files by cutoff day:
//
//	archive/opportunities/2026-03-14/20260314T120000Z.jsonl
func archivePath(kind string, before time.Time) string {
	before = before.UTC()
	return fmt.Sprintf("archive/%s/%s/%s.jsonl", kind, before.Format("2006-01-02"), before.Format("20060102T150405Z"))
}

// marshalJSONL encodes one compact JSON document per line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

var _ domain.Archiver = (*Archiver)(nil)
