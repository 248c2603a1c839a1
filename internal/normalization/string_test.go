package normalization

import "testing"

func TestPhrase(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"You NEVER listen!":       "you never listen",
		"  you never   listen ":   "you never listen",
		"Don't walk away from me": "dont walk away from me",
		"...":                     "",
	}
	for in, want := range cases {
		if got := Phrase(in); got != want {
			t.Fatalf("Phrase(%q)=%q want %q", in, got, want)
		}
	}
}

func TestTopicKey(t *testing.T) {
	t.Parallel()
	if TopicKey("Chores") != TopicKey("the chores!") {
		t.Fatalf("expected chores variants to share a key")
	}
	if TopicKey("chores") != "chore" {
		t.Fatalf("unexpected key %q", TopicKey("chores"))
	}
	if TopicKey("money") == TopicKey("in-laws") {
		t.Fatalf("unrelated topics share a key")
	}
	if TopicKey("") != "" {
		t.Fatalf("empty topic should have empty key")
	}
}

func TestJaccard(t *testing.T) {
	t.Parallel()
	if got := Jaccard([]string{"a", "b"}, []string{"b", "c"}); got < 0.333 || got > 0.334 {
		t.Fatalf("Jaccard partial = %v", got)
	}
	if got := Jaccard([]string{"a"}, []string{"a"}); got != 1 {
		t.Fatalf("Jaccard identical = %v", got)
	}
	if got := Jaccard(nil, nil); got != 0 {
		t.Fatalf("Jaccard empty = %v", got)
	}
}
