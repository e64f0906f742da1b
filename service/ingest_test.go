package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/MUKTHARS/clmprod-sub000/model"
)

type fakeArchive struct {
	puts []string
	err  error
}

func (f *fakeArchive) Put(_ context.Context, contractID string, _ []byte, at time.Time) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.puts = append(f.puts, contractID)
	return ObjectName(contractID, at), nil
}

type fakeLocker struct {
	held     map[string]bool
	released int
}

func (f *fakeLocker) Lock(_ context.Context, contractID string) (func(context.Context), error) {
	if f.held[contractID] {
		return nil, newError(KindConflict, "contract %s is already being ingested", contractID)
	}
	return func(context.Context) { f.released++ }, nil
}

func TestIngestVerifyChecksum(t *testing.T) {
	svc := NewIngestService("seed-123", nil, nil, nil, nil)
	content := `{"id": 1}`
	hash := sha256.Sum256([]byte("seed-123" + content))
	valid := hex.EncodeToString(hash[:])

	tests := []struct {
		name     string
		checksum string
		content  string
		expected bool
	}{
		{name: "valid checksum", checksum: valid, content: content, expected: true},
		{name: "tampered content", checksum: valid, content: `{"id": 2}`, expected: false},
		{name: "wrong checksum", checksum: "deadbeef", content: content, expected: false},
		{name: "empty checksum", checksum: "", content: content, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := svc.VerifyChecksum(tt.checksum, tt.content); got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestIngestCreatesDraft(t *testing.T) {
	contracts := NewContractStore(newTestDB(t))
	pending := &fakePending{}
	archive := &fakeArchive{}
	locker := &fakeLocker{}
	svc := NewIngestService("seed", contracts, pending, locker, archive)

	raw := `{"id": 7, "status": "approved", "grant_name": "Wells", "history": [{"action": "final_approval", "from_status": "reviewed", "to_status": "approved", "actor_role": "director"}]}`
	res, err := svc.Ingest(context.Background(), []byte(raw))
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if res.Contract.Status != model.StatusDraft {
		t.Errorf("Expected draft, got %s", res.Contract.Status)
	}
	if res.Shape != "flat" {
		t.Errorf("Expected flat shape, got %s", res.Shape)
	}
	if res.ArchivedAs == "" || len(archive.puts) != 1 {
		t.Errorf("Expected payload archived, got %q (%d puts)", res.ArchivedAs, len(archive.puts))
	}
	if locker.released != 1 {
		t.Errorf("Expected lock released once, got %d", locker.released)
	}
	if pending.invalidations != 1 {
		t.Errorf("Expected pending invalidation, got %d", pending.invalidations)
	}

	stored, err := contracts.Get(context.Background(), "7")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if stored.Status != model.StatusDraft || len(stored.History) != 0 {
		t.Errorf("Expected draft with empty history, got %s with %d entries", stored.Status, len(stored.History))
	}
}

func TestIngestErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("duplicate id", func(t *testing.T) {
		contracts := NewContractStore(newTestDB(t))
		svc := NewIngestService("seed", contracts, nil, nil, nil)
		if _, err := svc.Ingest(ctx, []byte(`{"id": 7}`)); err != nil {
			t.Fatalf("First ingest failed: %v", err)
		}
		_, err := svc.Ingest(ctx, []byte(`{"contract_id": 7, "grant_name": "again"}`))
		if !errors.Is(err, ErrConflict) {
			t.Errorf("Expected conflict, got %v", err)
		}
	})

	t.Run("no id", func(t *testing.T) {
		svc := NewIngestService("seed", NewContractStore(newTestDB(t)), nil, nil, nil)
		_, err := svc.Ingest(ctx, []byte(`{"grant_name": "orphan"}`))
		if !errors.Is(err, ErrNormalization) {
			t.Errorf("Expected normalization error, got %v", err)
		}
	})

	t.Run("locked id", func(t *testing.T) {
		contracts := NewContractStore(newTestDB(t))
		svc := NewIngestService("seed", contracts, nil, &fakeLocker{held: map[string]bool{"7": true}}, nil)
		_, err := svc.Ingest(ctx, []byte(`{"id": 7}`))
		if !errors.Is(err, ErrConflict) {
			t.Errorf("Expected conflict, got %v", err)
		}
		if n, _ := contracts.Count(ctx); n != 0 {
			t.Errorf("Expected nothing stored, got %d", n)
		}
	})

	t.Run("archive failure is not fatal", func(t *testing.T) {
		contracts := NewContractStore(newTestDB(t))
		svc := NewIngestService("seed", contracts, nil, nil, &fakeArchive{err: errors.New("bucket gone")})
		res, err := svc.Ingest(ctx, []byte(`{"id": 7}`))
		if err != nil {
			t.Fatalf("Expected ingest to succeed, got %v", err)
		}
		if res.ArchivedAs != "" {
			t.Errorf("Expected no archive name, got %s", res.ArchivedAs)
		}
	})
}
