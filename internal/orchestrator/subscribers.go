package orchestrator

import (
	"sync"

	"github.com/zhoukaigo/docling-serve/internal/logger"
)

// subscriberBuffer bounds how many unread messages a slow subscriber can
// accumulate before further sends are dropped. Delivery is best-effort; a
// slow subscriber must not block others.
const subscriberBuffer = 8

// Subscribers is the per-task set of push channels feeding live status
// streams, each carrying structured StatusMessages.
type Subscribers struct {
	mu     sync.Mutex
	byTask map[string]map[int]chan StatusMessage
	nextID int
}

// NewSubscribers builds an empty Subscribers registry.
func NewSubscribers() *Subscribers {
	return &Subscribers{byTask: make(map[string]map[int]chan StatusMessage)}
}

// Subscribe registers a new channel for taskID and returns its id and the
// channel to read from. The caller must eventually call Unsubscribe.
func (s *Subscribers) Subscribe(taskID string) (int, <-chan StatusMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	ch := make(chan StatusMessage, subscriberBuffer)
	if s.byTask[taskID] == nil {
		s.byTask[taskID] = make(map[int]chan StatusMessage)
	}
	s.byTask[taskID][id] = ch
	return id, ch
}

// Unsubscribe removes and closes a single subscriber channel.
func (s *Subscribers) Unsubscribe(taskID string, id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subs, ok := s.byTask[taskID]
	if !ok {
		return
	}
	if ch, ok := subs[id]; ok {
		delete(subs, id)
		close(ch)
	}
	if len(subs) == 0 {
		delete(s.byTask, taskID)
	}
}

// Notify best-effort sends msg to every subscriber of taskID. A subscriber
// whose buffer is full is skipped rather than blocking the others.
func (s *Subscribers) Notify(taskID string, msg StatusMessage) {
	s.mu.Lock()
	subs := s.byTask[taskID]
	chans := make([]chan StatusMessage, 0, len(subs))
	for _, ch := range subs {
		chans = append(chans, ch)
	}
	s.mu.Unlock()

	for _, ch := range chans {
		select {
		case ch <- msg:
		default:
			logger.Orchestrator.Warn("dropping status message for slow subscriber", "task_id", taskID)
		}
	}
}

// TaskIDs returns every task-id with at least one live subscriber, used by
// notify_queue_positions to refresh every PENDING task's position.
func (s *Subscribers) TaskIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.byTask))
	for id := range s.byTask {
		ids = append(ids, id)
	}
	return ids
}

// Close closes and removes every subscriber of taskID, used when the task
// is deleted or, per policy, completes.
func (s *Subscribers) Close(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.byTask[taskID] {
		close(ch)
	}
	delete(s.byTask, taskID)
}
