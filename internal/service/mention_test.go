package service

import "testing"

func TestContainsMention(t *testing.T) {
	cases := []struct {
		content string
		agentID string
		want    bool
	}{
		{"hey @bob, ping", "bob", true},
		{"@bob", "bob", true},
		{"ping @bob", "bob", true},
		{"(@bob)", "bob", true},
		{"@bob!", "bob", true},
		{"no mention here", "bob", false},
		{"@bobby", "bob", false},              // longer tag, not a boundary
		{"mail@bob.example", "bob", false},    // email-ish, no boundary before
		{"@bob.example", "bob", false},        // '.' extends the tag
		{"@bobby then @bob later", "bob", true},
		{"@agent-7 report", "agent-7", true},
		{"@agent-77", "agent-7", false},
	}
	for _, tc := range cases {
		if got := containsMention(tc.content, tc.agentID); got != tc.want {
			t.Errorf("containsMention(%q, %q) = %v, want %v", tc.content, tc.agentID, got, tc.want)
		}
	}
}

func TestMentionedMembers(t *testing.T) {
	members := []string{"alice", "bob", "carol"}

	got := mentionedMembers("hey @bob and @carol", "alice", members)
	if len(got) != 2 || got[0] != "bob" || got[1] != "carol" {
		t.Fatalf("got %v", got)
	}

	// Self-mentions never notify.
	got = mentionedMembers("note to self @alice", "alice", members)
	if len(got) != 0 {
		t.Fatalf("author mentioned themselves: %v", got)
	}

	// Non-members are not scanned for.
	got = mentionedMembers("hi @dave", "alice", members)
	if len(got) != 0 {
		t.Fatalf("non-member matched: %v", got)
	}
}
