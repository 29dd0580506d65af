package qbsync

import (
	"fmt"
	"testing"
)

func TestChunkStrings(t *testing.T) {
	ids := make([]string, 75)
	for i := range ids {
		ids[i] = fmt.Sprintf("id-%d", i)
	}

	chunks := chunkStrings(ids, mappingChunkSize)
	if len(chunks) != 3 {
		t.Fatalf("chunks = %d, want 3", len(chunks))
	}
	if len(chunks[0]) != 30 || len(chunks[1]) != 30 || len(chunks[2]) != 15 {
		t.Fatalf("chunk sizes = %d/%d/%d, want 30/30/15", len(chunks[0]), len(chunks[1]), len(chunks[2]))
	}
	if chunks[2][14] != "id-74" {
		t.Fatalf("last element = %q, want id-74", chunks[2][14])
	}
}

func TestChunkStringsEdgeCases(t *testing.T) {
	if got := chunkStrings(nil, 30); got != nil {
		t.Fatalf("nil input should yield no chunks, got %v", got)
	}
	if got := chunkStrings([]string{"a"}, 0); got != nil {
		t.Fatalf("non-positive size should yield no chunks, got %v", got)
	}
	chunks := chunkStrings([]string{"a", "b"}, 30)
	if len(chunks) != 1 || len(chunks[0]) != 2 {
		t.Fatalf("small input should stay a single chunk, got %v", chunks)
	}
}
