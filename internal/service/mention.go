package service

import "strings"

// mentionedMembers returns channel members (other than the author) whose
// mention tag ("@" + agent ID) appears in content at a token boundary.
// "@alice" matches alice; "hi@alice.example" and "@alices" do not.
func mentionedMembers(content, authorID string, members []string) []string {
	var mentioned []string
	for _, member := range members {
		if member == authorID {
			continue
		}
		if containsMention(content, member) {
			mentioned = append(mentioned, member)
		}
	}
	return mentioned
}

func containsMention(content, agentID string) bool {
	tag := "@" + agentID
	offset := 0
	for {
		idx := strings.Index(content[offset:], tag)
		if idx < 0 {
			return false
		}
		start := offset + idx
		end := start + len(tag)

		beforeOK := start == 0 || !isTagChar(rune(content[start-1]))
		afterOK := end == len(content) || !isTagChar(rune(content[end]))
		if beforeOK && afterOK {
			return true
		}
		offset = start + 1
	}
}

func isTagChar(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '_' || r == '-' || r == '.':
		return true
	}
	return false
}
