// Package chanlog implements the append-only per-channel message log.
// Append is the sole ordering authority: entry IDs are assigned at append
// time, are strictly increasing within a channel, and are never reused.
package chanlog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"agora.dev/courier/internal/model"
)

// ErrUnavailable is returned when the log backend cannot be reached.
// Appends must fail loudly with it; history readers may fall back to the
// durable archive instead.
var ErrUnavailable = errors.New("channel log unavailable")

// Log is the append-only, ordered message log, keyed by channel.
type Log interface {
	// Append assigns the next entry ID and stores the message. The
	// returned ID is also written back to msg.EntryID.
	Append(ctx context.Context, msg *model.Message) (string, error)

	// ReadRange returns up to count entries strictly after fromExclusive,
	// oldest first. An empty fromExclusive reads from the beginning.
	ReadRange(ctx context.Context, channelID, fromExclusive string, count int64) ([]model.Message, error)

	// ReadLatest returns the newest count entries, oldest first.
	ReadLatest(ctx context.Context, channelID string, count int64) ([]model.Message, error)
}

// StreamKey is the Redis stream holding a channel's log.
func StreamKey(channelID string) string {
	return "courier:chan:" + channelID
}

// ParseEntryID splits a stream-style entry ID ("1726-0") into its numeric
// parts for ordering comparisons.
func ParseEntryID(id string) (ms, seq uint64, err error) {
	parts := strings.SplitN(id, "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed entry id %q", id)
	}
	ms, err = strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed entry id %q", id)
	}
	seq, err = strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed entry id %q", id)
	}
	return ms, seq, nil
}

// EntryIDLess reports whether a orders strictly before b. Malformed IDs
// sort first so they never mask real entries.
func EntryIDLess(a, b string) bool {
	ams, aseq, aerr := ParseEntryID(a)
	bms, bseq, berr := ParseEntryID(b)
	if aerr != nil {
		return berr == nil
	}
	if berr != nil {
		return false
	}
	if ams != bms {
		return ams < bms
	}
	return aseq < bseq
}
