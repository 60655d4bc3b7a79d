package chanlog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"agora.dev/courier/internal/model"
)

// MemoryLog is the embedded-mode log: same semantics as the Redis-backed
// log, scoped to one process. It backs development without Redis and the
// in-process multi-instance tests.
type MemoryLog struct {
	mu       sync.Mutex
	channels map[string]*memoryStream
}

type memoryStream struct {
	entries []model.Message
	lastMS  int64
	lastSeq int64
	// appended is closed and replaced on every append; readers block on it
	// to wake up without polling.
	appended chan struct{}
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{channels: make(map[string]*memoryStream)}
}

func (l *MemoryLog) stream(channelID string) *memoryStream {
	s, ok := l.channels[channelID]
	if !ok {
		s = &memoryStream{appended: make(chan struct{})}
		l.channels[channelID] = s
	}
	return s
}

func (l *MemoryLog) Append(ctx context.Context, msg *model.Message) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := l.stream(msg.ChannelID)

	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	ms := time.Now().UnixMilli()
	if ms < s.lastMS {
		ms = s.lastMS
	}
	if ms == s.lastMS {
		s.lastSeq++
	} else {
		s.lastMS = ms
		s.lastSeq = 0
	}
	msg.EntryID = fmt.Sprintf("%d-%d", s.lastMS, s.lastSeq)

	s.entries = append(s.entries, *msg)
	close(s.appended)
	s.appended = make(chan struct{})

	return msg.EntryID, nil
}

func (l *MemoryLog) ReadRange(ctx context.Context, channelID, fromExclusive string, count int64) ([]model.Message, error) {
	out, _, err := l.ReadRangeNotify(ctx, channelID, fromExclusive, count)
	return out, err
}

// ReadRangeNotify reads like ReadRange and also returns a channel that is
// closed on the next append. The channel is captured in the same critical
// section as the read, so an append racing the return closes the returned
// channel instead of slipping between read and wait.
func (l *MemoryLog) ReadRangeNotify(_ context.Context, channelID, fromExclusive string, count int64) ([]model.Message, <-chan struct{}, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := l.stream(channelID)
	var out []model.Message
	for _, entry := range s.entries {
		if int64(len(out)) >= count {
			break
		}
		if fromExclusive == "" || EntryIDLess(fromExclusive, entry.EntryID) {
			out = append(out, entry)
		}
	}
	return out, s.appended, nil
}

func (l *MemoryLog) ReadLatest(_ context.Context, channelID string, count int64) ([]model.Message, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := l.stream(channelID)
	start := int64(len(s.entries)) - count
	if start < 0 {
		start = 0
	}
	out := make([]model.Message, len(s.entries[start:]))
	copy(out, s.entries[start:])
	return out, nil
}

// LastEntryID returns the newest entry ID, or "" for an empty channel.
func (l *MemoryLog) LastEntryID(channelID string) string {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := l.stream(channelID)
	if len(s.entries) == 0 {
		return ""
	}
	return s.entries[len(s.entries)-1].EntryID
}
