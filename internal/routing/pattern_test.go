package routing

import "testing"

func TestParsePathPattern(t *testing.T) {
	if _, ok := parsePathPattern("/en/api/sectors"); ok {
		t.Fatal("literal path should not parse as pattern")
	}
	if _, ok := parsePathPattern("/{lang}/api/sectors"); !ok {
		t.Fatal("param path should parse")
	}
	if _, ok := parsePathPattern("{lang}/api"); ok {
		t.Fatal("pattern must start with /")
	}
	if _, ok := parsePathPattern("/{}/api"); ok {
		t.Fatal("empty param name is invalid")
	}
	if _, ok := parsePathPattern("/a{lang}/api"); ok {
		t.Fatal("partial param segment is invalid")
	}
}

func TestPathPatternMatch(t *testing.T) {
	p, ok := parsePathPattern("/{lang}/api/sectors/{id}")
	if !ok {
		t.Fatal("parsePathPattern failed")
	}
	if !p.Match("/en/api/sectors/42") {
		t.Fatal("expected match")
	}
	if p.Match("/en/api/sectors") {
		t.Fatal("segment count mismatch should not match")
	}
	if p.Match("/en/api/hazards/42") {
		t.Fatal("literal segment mismatch should not match")
	}
	if p.Match("/en/api/sectors/") {
		t.Fatal("empty trailing segment should not match")
	}
}

func TestPathPatternZeroValue(t *testing.T) {
	var p PathPattern
	if p.Match("/anything") {
		t.Fatal("zero pattern must not match")
	}
}
