// Package notify is the user-facing notification sink. It is an explicit
// object handed to the components that report through it, not a package
// global; the host UI subscribes to render toasts however it likes.
package notify

import (
	"sync"
	"time"
)

type Kind string

const (
	Success Kind = "success"
	Warning Kind = "warning"
	Error   Kind = "error"
)

type Notification struct {
	Kind    Kind      `json:"kind"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

const maxRetained = 50

type Queue struct {
	mu     sync.Mutex
	items  []Notification
	subs   map[int]func(Notification)
	nextID int
}

func NewQueue() *Queue {
	return &Queue{subs: make(map[int]func(Notification))}
}

func (q *Queue) Push(kind Kind, message string) {
	n := Notification{Kind: kind, Message: message, At: time.Now()}

	q.mu.Lock()
	q.items = append(q.items, n)
	if len(q.items) > maxRetained {
		q.items = q.items[len(q.items)-maxRetained:]
	}
	subs := make([]func(Notification), 0, len(q.subs))
	for _, fn := range q.subs {
		subs = append(subs, fn)
	}
	q.mu.Unlock()

	for _, fn := range subs {
		fn(n)
	}
}

// Subscribe registers a callback for future notifications and returns an
// id for Unsubscribe.
func (q *Queue) Subscribe(fn func(Notification)) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.nextID++
	q.subs[q.nextID] = fn
	return q.nextID
}

func (q *Queue) Unsubscribe(id int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.subs, id)
}

// Recent returns the retained notifications, oldest first.
func (q *Queue) Recent() []Notification {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Notification, len(q.items))
	copy(out, q.items)
	return out
}
