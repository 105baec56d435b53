package cache

import (
	"log/slog"
	"testing"

	"github.com/kontext/clipsearch/internal/search"
	"github.com/kontext/clipsearch/pkg/config"
)

func testCache() *QueryCache {
	cfg := config.SearchConfig{
		DefaultLimit:   20,
		MaxLimit:       50,
		DefaultPreroll: 4,
		MaxPreroll:     30,
	}
	return New(nil, nil, cfg, 0, nil, slog.Default())
}

func TestKeyNormalizesQuerySpelling(t *testing.T) {
	c := testCache()

	a := c.key(search.Params{Query: "검색 엔진", Limit: 10, PrerollSec: 4})
	b := c.key(search.Params{Query: "  검색, 엔진! ", Limit: 10, PrerollSec: 4})
	if a != b {
		t.Errorf("spelling-equivalent queries should share a key: %s vs %s", a, b)
	}
}

func TestKeyClampsKnobs(t *testing.T) {
	c := testCache()

	tests := []struct {
		name string
		a, b search.Params
	}{
		{"zero limit means default", search.Params{Query: "검색", Limit: 0, PrerollSec: 4}, search.Params{Query: "검색", Limit: 20, PrerollSec: 4}},
		{"limit above ceiling", search.Params{Query: "검색", Limit: 500, PrerollSec: 4}, search.Params{Query: "검색", Limit: 50, PrerollSec: 4}},
		{"preroll above ceiling", search.Params{Query: "검색", Limit: 10, PrerollSec: 99}, search.Params{Query: "검색", Limit: 10, PrerollSec: 30}},
	}
	for _, tt := range tests {
		if c.key(tt.a) != c.key(tt.b) {
			t.Errorf("%s: keys differ for the same effective search", tt.name)
		}
	}
}

func TestKeyDistinguishesSearches(t *testing.T) {
	c := testCache()

	base := c.key(search.Params{Query: "검색", Limit: 10, PrerollSec: 4})
	if c.key(search.Params{Query: "엔진", Limit: 10, PrerollSec: 4}) == base {
		t.Error("different queries should not collide")
	}
	if c.key(search.Params{Query: "검색", Limit: 5, PrerollSec: 4}) == base {
		t.Error("different limits should not collide")
	}
	if c.key(search.Params{Query: "검색", Limit: 10, PrerollSec: 8}) == base {
		t.Error("different prerolls should not collide")
	}
}
