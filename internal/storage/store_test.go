package storage

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/NoahNelson/Pipes/internal/fingerprint"
	"github.com/NoahNelson/Pipes/internal/model"
)

// testStore exercises the Store contract against a fresh, empty store.
func testStore(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("RegisterIdempotent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		id1, err := s.RegisterRecording(ctx, "master.wav")
		if err != nil {
			t.Fatalf("Failed to register recording: %v", err)
		}
		id2, err := s.RegisterRecording(ctx, "master.wav")
		if err != nil {
			t.Fatalf("Failed to register recording second time: %v", err)
		}
		if id1 != id2 {
			t.Errorf("Expected same recording ID for duplicate registration, got %d and %d", id1, id2)
		}

		other, err := s.RegisterRecording(ctx, "other.wav")
		if err != nil {
			t.Fatalf("Failed to register second recording: %v", err)
		}
		if other == id1 {
			t.Errorf("Expected distinct IDs, both were %d", other)
		}
	})

	t.Run("RegisterEmptyName", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.RegisterRecording(context.Background(), "  "); !errors.Is(err, ErrEmptyName) {
			t.Errorf("Expected ErrEmptyName, got %v", err)
		}
	})

	t.Run("StoreAndLookup", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		a, _ := s.RegisterRecording(ctx, "a")
		b, _ := s.RegisterRecording(ctx, "b")

		if err := s.StoreFingerprints(ctx, a, []fingerprint.Record{{Hash: 42, Offset: 10}, {Hash: 42, Offset: 110}, {Hash: 1, Offset: 3}}); err != nil {
			t.Fatalf("Failed to store fingerprints: %v", err)
		}
		if err := s.StoreFingerprints(ctx, b, []fingerprint.Record{{Hash: 42, Offset: -7}}); err != nil {
			t.Fatalf("Failed to store fingerprints: %v", err)
		}
		// Duplicates are ignored.
		if err := s.StoreFingerprints(ctx, a, []fingerprint.Record{{Hash: 42, Offset: 10}}); err != nil {
			t.Fatalf("Storing duplicate fingerprints failed: %v", err)
		}

		got, err := s.CouplesByHash(ctx, 42)
		if err != nil {
			t.Fatalf("CouplesByHash failed: %v", err)
		}
		sort.Slice(got, func(i, j int) bool {
			if got[i].CandidateID != got[j].CandidateID {
				return got[i].CandidateID < got[j].CandidateID
			}
			return got[i].Offset < got[j].Offset
		})
		want := []model.Couple{{CandidateID: a, Offset: 10}, {CandidateID: a, Offset: 110}, {CandidateID: b, Offset: -7}}
		if len(got) != len(want) {
			t.Fatalf("Expected %d couples, got %d: %v", len(want), len(got), got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("couple %d: expected %+v, got %+v", i, want[i], got[i])
			}
		}

		none, err := s.CouplesByHash(ctx, 999)
		if err != nil {
			t.Fatalf("CouplesByHash for unknown hash failed: %v", err)
		}
		if len(none) != 0 {
			t.Errorf("Expected no couples for unknown hash, got %v", none)
		}
	})

	t.Run("LargeBatch", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		id, _ := s.RegisterRecording(ctx, "long")
		records := make([]fingerprint.Record, 2500)
		for i := range records {
			records[i] = fingerprint.Record{Hash: uint32(i % 50), Offset: int64(i)}
		}
		if err := s.StoreFingerprints(ctx, id, records); err != nil {
			t.Fatalf("Failed to store fingerprints: %v", err)
		}

		got, err := s.CouplesByHash(ctx, 7)
		if err != nil {
			t.Fatalf("CouplesByHash failed: %v", err)
		}
		if len(got) != 50 {
			t.Errorf("Expected 50 couples for hash 7, got %d", len(got))
		}
	})

	t.Run("ListAndDelete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		a, _ := s.RegisterRecording(ctx, "first")
		b, _ := s.RegisterRecording(ctx, "second")
		if err := s.StoreFingerprints(ctx, a, []fingerprint.Record{{Hash: 1, Offset: 1}, {Hash: 2, Offset: 2}}); err != nil {
			t.Fatalf("Failed to store fingerprints: %v", err)
		}

		recs, err := s.ListRecordings(ctx)
		if err != nil {
			t.Fatalf("ListRecordings failed: %v", err)
		}
		if len(recs) != 2 {
			t.Fatalf("Expected 2 recordings, got %d", len(recs))
		}
		if recs[0].ID != a || recs[0].Name != "first" || recs[0].Fingerprints != 2 {
			t.Errorf("Unexpected first recording: %+v", recs[0])
		}
		if recs[1].ID != b || recs[1].Fingerprints != 0 {
			t.Errorf("Unexpected second recording: %+v", recs[1])
		}
		if recs[0].CreatedAt.IsZero() || time.Since(recs[0].CreatedAt) > time.Hour {
			t.Errorf("Expected a recent creation time, got %v", recs[0].CreatedAt)
		}

		if err := s.DeleteRecording(ctx, a); err != nil {
			t.Fatalf("DeleteRecording failed: %v", err)
		}
		got, err := s.CouplesByHash(ctx, 1)
		if err != nil {
			t.Fatalf("CouplesByHash failed: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("Expected fingerprints to be deleted with the recording, got %v", got)
		}

		if err := s.DeleteRecording(ctx, a); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound deleting twice, got %v", err)
		}
	})
}
