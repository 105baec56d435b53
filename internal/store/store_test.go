package store

import (
	"testing"
)

func TestDecodeTimedTokens(t *testing.T) {
	raw := []byte(`[
		{"idx": 1, "token": "둘째", "token_norm": "둘째", "start_sec": 3.0, "end_sec": 6.0},
		{"idx": 0, "token": "첫째", "token_norm": "첫째", "start_sec": 0.0, "end_sec": 3.0}
	]`)

	tokens := decodeTimedTokens(raw)
	if len(tokens) != 2 {
		t.Fatalf("expected 2 tokens, got %d", len(tokens))
	}
	// returned sorted by idx regardless of payload order
	if tokens[0].Idx != 0 || tokens[0].Token != "첫째" {
		t.Errorf("first token = %+v", tokens[0])
	}
	if tokens[1].Idx != 1 || tokens[1].EndSec != 6 {
		t.Errorf("second token = %+v", tokens[1])
	}
}

func TestDecodeTimedTokensDropsMalformedRows(t *testing.T) {
	raw := []byte(`[
		{"idx": 0, "token": "좋음", "token_norm": "좋음", "start_sec": 0.0, "end_sec": 1.0},
		{"idx": 1, "token": "필드없음"},
		{"token": "인덱스없음", "token_norm": "", "start_sec": 1.0, "end_sec": 2.0},
		"wrong shape",
		{"idx": 2, "token": "좋음2", "token_norm": "좋음2", "start_sec": 2.0, "end_sec": 3.0}
	]`)

	tokens := decodeTimedTokens(raw)
	if len(tokens) != 2 {
		t.Fatalf("expected 2 valid tokens, got %d: %+v", len(tokens), tokens)
	}
	if tokens[0].Idx != 0 || tokens[1].Idx != 2 {
		t.Errorf("unexpected surviving tokens: %+v", tokens)
	}
}

func TestDecodeTimedTokensInvalidPayload(t *testing.T) {
	for _, raw := range [][]byte{nil, []byte(""), []byte("{}"), []byte("not json")} {
		if got := decodeTimedTokens(raw); got != nil {
			t.Errorf("decodeTimedTokens(%q) = %v, want nil", raw, got)
		}
	}
}

func TestChunkIdentityKey(t *testing.T) {
	if got := chunkIdentityKey("video-1", 2, 5); got != "video-1:2:5" {
		t.Errorf("chunkIdentityKey = %q", got)
	}
}
