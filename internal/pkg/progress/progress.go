// Package progress is the Progress Broadcaster (C10): a per-task
// publish/subscribe channel for progress events, generalized from the
// teacher's websocket connection keeper into a transport-agnostic
// broadcaster any SSE/WebSocket handler can subscribe to.
package progress

import (
	"sync"

	"github.com/airenas/go-app/pkg/goapp"
)

// EventType names one of the three progress event shapes (§6).
type EventType string

const (
	TypeProgress  EventType = "progress"
	TypeCompleted EventType = "completed"
	TypeError     EventType = "error"
)

// Event is published to every subscriber of a task's topic, in publish order.
type Event struct {
	Type     EventType `json:"type"`
	Status   string    `json:"status"`
	Stage    string    `json:"stage,omitempty"`
	Progress int32     `json:"progress"`
	TaskID   string    `json:"task_id"`
}

const subscriberBuffer = 16

// topic holds one task's subscribers plus the last event, handed to late
// subscribers as an immediate snapshot.
type topic struct {
	subs []chan Event
	last *Event
}

// Broadcaster fans out progress events per task_id. At-most-once
// delivery per subscriber: a slow subscriber whose buffer fills drops
// events rather than blocking the publisher.
type Broadcaster struct {
	mu     sync.Mutex
	topics map[string]*topic
}

// New creates an empty broadcaster.
func New() *Broadcaster {
	return &Broadcaster{topics: map[string]*topic{}}
}

// Publish sends ev to every current subscriber of ev.TaskID and records
// it as the topic's snapshot for subsequent late subscribers.
func (b *Broadcaster) Publish(taskID string, ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.topics[taskID]
	if !ok {
		t = &topic{}
		b.topics[taskID] = t
	}
	ev.TaskID = taskID
	t.last = &ev
	for _, ch := range t.subs {
		select {
		case ch <- ev:
		default:
			goapp.Log.Warn().Str("taskID", taskID).Msg("subscriber channel full, dropping event")
		}
	}
}

// Subscribe registers a new subscriber for taskID, returning a channel
// of future events and an unsubscribe func. If a snapshot exists (a late
// subscriber), it is delivered immediately as the channel's first value.
func (b *Broadcaster) Subscribe(taskID string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.topics[taskID]
	if !ok {
		t = &topic{}
		b.topics[taskID] = t
	}
	ch := make(chan Event, subscriberBuffer)
	t.subs = append(t.subs, ch)
	if t.last != nil {
		ch <- *t.last
	}
	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		tt, ok := b.topics[taskID]
		if !ok {
			return
		}
		for i, c := range tt.subs {
			if c == ch {
				tt.subs = append(tt.subs[:i], tt.subs[i+1:]...)
				close(ch)
				break
			}
		}
		if len(tt.subs) == 0 && tt.last != nil && (tt.last.Type == TypeCompleted || tt.last.Type == TypeError) {
			delete(b.topics, taskID)
		}
	}
	return ch, unsub
}
