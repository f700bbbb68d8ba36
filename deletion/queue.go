// Package deletion holds teardown actions that must run in reverse order of
// registration.
package deletion

// Queue is a LIFO list of release actions. The caller guarantees the GPU no
// longer uses what an action releases by the time Flush runs.
type Queue struct {
	actions []func()
}

func (q *Queue) Push(action func()) {
	q.actions = append(q.actions, action)
}

// Flush runs every action, most recently pushed first, and empties the queue.
func (q *Queue) Flush() {
	for i := len(q.actions) - 1; i >= 0; i-- {
		action := q.actions[i]
		q.actions[i] = nil
		action()
	}
	q.actions = q.actions[:0]
}

func (q *Queue) Len() int {
	return len(q.actions)
}
