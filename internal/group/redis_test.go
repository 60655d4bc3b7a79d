package group

import (
	"errors"
	"testing"
)

// Error strings as Redis servers actually phrase them; Unsubscribe and the
// status/listing paths key their no-op behavior on these.
func TestRedisErrorClassification(t *testing.T) {
	busyGroup := errors.New("BUSYGROUP Consumer Group name already exists")
	noGroup := errors.New("NOGROUP No such consumer group 'agent:bob' in XREADGROUP with GROUP option")
	noKey := errors.New("ERR no such key")
	xgroupMissingKey := errors.New("ERR The XGROUP subcommand requires the key to exist. Note that for CONSUMER commands, the group must exist for the command to succeed.")

	if !isBusyGroup(busyGroup) {
		t.Error("BUSYGROUP not recognized")
	}
	if !isNoGroup(noGroup) {
		t.Error("NOGROUP not recognized")
	}
	if !isNoStream(noKey) {
		t.Error("missing stream key (XINFO form) not recognized")
	}
	// XGROUP DESTROY on a channel nobody ever published to or subscribed
	// to fails with the missing-key message, not NOGROUP.
	if !isNoStream(xgroupMissingKey) {
		t.Error("missing stream key (XGROUP form) not recognized")
	}
	if isNoGroup(xgroupMissingKey) {
		t.Error("XGROUP missing-key message misread as NOGROUP")
	}

	other := errors.New("ERR unknown command")
	if isBusyGroup(other) || isNoGroup(other) || isNoStream(other) {
		t.Error("unrelated error misclassified")
	}
	if isBusyGroup(nil) || isNoGroup(nil) || isNoStream(nil) {
		t.Error("nil error misclassified")
	}
}
