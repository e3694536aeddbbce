// Copyright 2025 James Ross
package frontendworker

import "testing"

func TestContentDigestStableUnderKeyOrder(t *testing.T) {
	a := map[string][]byte{"lead": []byte("spec-a"), "worker-1": []byte("spec-b")}
	b := map[string][]byte{"worker-1": []byte("spec-b"), "lead": []byte("spec-a")}
	if contentDigest(a) != contentDigest(b) {
		t.Fatal("expected identical digest regardless of map iteration order")
	}
}

func TestContentDigestChangesWithContent(t *testing.T) {
	a := map[string][]byte{"lead": []byte("spec-a")}
	b := map[string][]byte{"lead": []byte("spec-a-changed")}
	if contentDigest(a) == contentDigest(b) {
		t.Fatal("expected different digests for different pod spec content")
	}
}

func TestContentDigestEmpty(t *testing.T) {
	if contentDigest(nil) == "" {
		t.Fatal("expected a stable digest even for an empty pod spec set")
	}
}
