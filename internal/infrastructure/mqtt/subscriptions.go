package mqtt

import (
	"slices"
	"sync"
)

// Subscription is one entry of the subscription set.
type Subscription struct {
	Topic string
	QoS   QoS
}

// subscriptionSet holds the desired topic filters per QoS level. Each
// level keeps insertion order and no duplicates; the same filter may be
// present at several levels.
//
// live is true between the snapshot taken for an accepted CONNACK and the
// loss of that session. A change made while live must go on the wire
// itself; a change made before it is covered by the next snapshot.
type subscriptionSet struct {
	mu     sync.Mutex
	levels [maxQoS + 1][]string
	live   bool
}

// add records topic at qos. It reports whether the topic was new and
// whether the wire session is live.
func (s *subscriptionSet) add(topic string, qos QoS) (added, live bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if slices.Contains(s.levels[qos], topic) {
		return false, s.live
	}
	s.levels[qos] = append(s.levels[qos], topic)
	return true, s.live
}

// removeAt drops topic from one level.
func (s *subscriptionSet) removeAt(topic string, qos QoS) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.levels[qos] = slices.DeleteFunc(s.levels[qos], func(t string) bool { return t == topic })
}

// remove drops topic from every level. It reports whether the topic was
// present and whether the wire session is live.
func (s *subscriptionSet) remove(topic string) (found, live bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for q := range s.levels {
		before := len(s.levels[q])
		s.levels[q] = slices.DeleteFunc(s.levels[q], func(t string) bool { return t == topic })
		if len(s.levels[q]) != before {
			found = true
		}
	}
	return found, s.live
}

// goLive marks the wire session live and returns the set it must carry.
func (s *subscriptionSet) goLive() []Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.live = true
	return s.listLocked()
}

// goDown marks the wire session gone.
func (s *subscriptionSet) goDown() {
	s.mu.Lock()
	s.live = false
	s.mu.Unlock()
}

// list returns every subscription ordered by QoS level, then insertion.
func (s *subscriptionSet) list() []Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLocked()
}

func (s *subscriptionSet) listLocked() []Subscription {
	var out []Subscription
	for q, topics := range s.levels {
		for _, t := range topics {
			out = append(out, Subscription{Topic: t, QoS: QoS(q)})
		}
	}
	return out
}
