package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

type recordingWriter struct {
	path      string
	body      []byte
	multipart bool
	err       error
}

func (w *recordingWriter) Put(_ context.Context, path string, data io.Reader, _ string) error {
	if w.err != nil {
		return w.err
	}
	w.path = path
	w.body, _ = io.ReadAll(data)
	return nil
}

func (w *recordingWriter) PutMultipart(_ context.Context, path string, data io.Reader, _ int64) error {
	w.multipart = true
	return w.Put(context.Background(), path, data, contentTypeJSONL)
}

type fakeStore struct {
	opps    []domain.HedgeOpportunity
	deleted bool
}

func (s *fakeStore) ListBefore(_ context.Context, before time.Time) ([]domain.HedgeOpportunity, error) {
	var out []domain.HedgeOpportunity
	for _, o := range s.opps {
		if o.FoundAt.Before(before) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *fakeStore) DeleteBefore(context.Context, time.Time) (int64, error) {
	s.deleted = true
	return int64(len(s.opps)), nil
}

func TestArchiveOpportunities(t *testing.T) {
	cutoff := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	store := &fakeStore{opps: []domain.HedgeOpportunity{
		{ID: "a", FoundAt: cutoff.Add(-time.Hour), EventName: "Liverpool v Arsenal"},
		{ID: "b", FoundAt: cutoff.Add(-time.Minute), EventName: "Leeds v Hull"},
		{ID: "c", FoundAt: cutoff.Add(time.Minute)},
	}}
	w := &recordingWriter{}
	a := NewArchiver(w, store, true)

	n, err := a.ArchiveOpportunities(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("ArchiveOpportunities: %v", err)
	}
	if n != 2 {
		t.Errorf("count = %d, want 2", n)
	}
	if want := "archive/opportunities/2026-03-14/20260314T120000Z.jsonl"; w.path != want {
		t.Errorf("path = %q, want %q", w.path, want)
	}
	lines := 0
	sc := bufio.NewScanner(bytes.NewReader(w.body))
	for sc.Scan() {
		lines++
	}
	if lines != 2 {
		t.Errorf("jsonl lines = %d, want 2", lines)
	}
	if !store.deleted {
		t.Error("archived rows not pruned")
	}
	if w.multipart {
		t.Error("small archive used multipart upload")
	}
}

func TestArchiveOpportunitiesUploadFailureKeepsRows(t *testing.T) {
	cutoff := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	store := &fakeStore{opps: []domain.HedgeOpportunity{{ID: "a", FoundAt: cutoff.Add(-time.Hour)}}}
	a := NewArchiver(&recordingWriter{err: errors.New("bucket gone")}, store, true)

	if _, err := a.ArchiveOpportunities(context.Background(), cutoff); err == nil {
		t.Fatal("expected upload error")
	}
	if store.deleted {
		t.Error("rows deleted after failed upload")
	}
}

func TestArchiveOpportunitiesLargeUsesMultipart(t *testing.T) {
	cutoff := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	store := &fakeStore{opps: []domain.HedgeOpportunity{
		{ID: "a", FoundAt: cutoff.Add(-time.Hour), EventName: "Liverpool v Arsenal"},
	}}
	w := &recordingWriter{}
	a := NewArchiver(w, store, false)
	a.partSize = 16

	if _, err := a.ArchiveOpportunities(context.Background(), cutoff); err != nil {
		t.Fatal(err)
	}
	if !w.multipart {
		t.Error("expected multipart upload")
	}
	if store.deleted {
		t.Error("rows pruned with prune disabled")
	}
}

func TestNormaliseEndpoint(t *testing.T) {
	tests := []struct {
		in   string
		ssl  bool
		want string
	}{
		{"https://e2.example.com", false, "https://e2.example.com"},
		{"minio:9000", false, "http://minio:9000"},
		{"minio:9000", true, "https://minio:9000"},
	}
	for _, tt := range tests {
		if got := normaliseEndpoint(tt.in, tt.ssl); got != tt.want {
			t.Errorf("normaliseEndpoint(%q, %v) = %q, want %q", tt.in, tt.ssl, got, tt.want)
		}
	}
}
