package iglu

import "testing"

func TestSkipListWildcardMatch(t *testing.T) {
	sl := NewSkipList([]string{"iglu:com.acme/click_event/jsonschema/1-*-*"})
	if !sl.Matches("iglu:com.acme/click_event/jsonschema/1-2-3") {
		t.Fatalf("expected match on wildcarded minor-patch")
	}
	if sl.Matches("iglu:com.acme/click_event/jsonschema/2-0-0") {
		t.Fatalf("expected no match on different major")
	}
}

func TestSkipListNoPatterns(t *testing.T) {
	sl := NewSkipList(nil)
	if sl.Matches("iglu:com.acme/click_event/jsonschema/1-0-0") {
		t.Fatalf("expected no match with empty skip list")
	}
}
