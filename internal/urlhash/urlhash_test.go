package urlhash

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func TestHashMatchesSha256Hex(t *testing.T) {
	cases := []string{
		"",
		"http://example.com/image.png",
		"ipfs://bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi",
	}
	for _, u := range cases {
		want := sha256.Sum256([]byte(u))
		if got := Hash(u); got != hex.EncodeToString(want[:]) {
			t.Errorf("Hash(%q) = %q, want %q", u, got, hex.EncodeToString(want[:]))
		}
	}
}

func TestHashIsStableAcrossCalls(t *testing.T) {
	u := "https://cdn.example.com/a/b/c.jpg"
	first := Hash(u)
	for i := 0; i < 5; i++ {
		if got := Hash(u); got != first {
			t.Fatalf("Hash(%q) not stable: %q != %q", u, got, first)
		}
	}
}

func TestHashAllPreservesOrder(t *testing.T) {
	urls := []string{"a", "b", "c"}
	got := HashAll(urls)
	for i, u := range urls {
		if got[i] != Hash(u) {
			t.Errorf("HashAll[%d] = %q, want %q", i, got[i], Hash(u))
		}
	}
}
