package presence

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

type readRequest struct {
	reply chan readReply
}

type readReply struct {
	snap Snapshot
	ok   bool
}

// Store owns the current Snapshot. All access goes through its Run loop,
// so only one goroutine ever touches the value.
type Store struct {
	publish chan Snapshot
	read    chan readRequest

	mu          sync.Mutex
	subscribers map[chan Snapshot]struct{}
}

// NewStore creates a Store. Call Run before publishing or reading.
func NewStore() *Store {
	return &Store{
		publish:     make(chan Snapshot),
		read:        make(chan readRequest),
		subscribers: make(map[chan Snapshot]struct{}),
	}
}

// Run serves publish and read requests until ctx is canceled.
func (s *Store) Run(ctx context.Context) error {
	log := logrus.WithField("component", "presence-store")
	log.Info("presence store started")
	defer log.Info("presence store stopped")

	var (
		current Snapshot
		has     bool
	)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap := <-s.publish:
			current = snap
			has = true
			s.notify(snap)
		case req := <-s.read:
			req.reply <- readReply{snap: current, ok: has}
		}
	}
}

// Publish replaces the current snapshot. The most recent publish wins.
func (s *Store) Publish(ctx context.Context, snap Snapshot) error {
	select {
	case s.publish <- snap:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Read returns the current snapshot. ok is false until the first publish.
func (s *Store) Read(ctx context.Context) (Snapshot, bool, error) {
	req := readRequest{reply: make(chan readReply, 1)}
	select {
	case s.read <- req:
	case <-ctx.Done():
		return Snapshot{}, false, ctx.Err()
	}
	select {
	case r := <-req.reply:
		return r.snap, r.ok, nil
	case <-ctx.Done():
		return Snapshot{}, false, ctx.Err()
	}
}

// Subscribe returns a channel receiving every published snapshot, and a
// function that removes the subscription. Slow subscribers miss updates.
func (s *Store) Subscribe(buffer int) (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, buffer)
	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, ch)
			s.mu.Unlock()
		})
	}
}

func (s *Store) notify(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subscribers {
		select {
		case ch <- snap:
		default:
			logrus.WithField("component", "presence-store").Debug("subscriber full, dropping snapshot")
		}
	}
}

// String implements fmt.Stringer for supervisor logs.
func (s *Store) String() string {
	return "presence-store"
}

// Serve implements suture.Service.
func (s *Store) Serve(ctx context.Context) error {
	return s.Run(ctx)
}
