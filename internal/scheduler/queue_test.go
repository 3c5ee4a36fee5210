package scheduler

import "testing"

func ids(q *queue) []string {
	var out []string
	for _, j := range q.Jobs() {
		out = append(out, j.ID)
	}
	return out
}

func assertOrder(t *testing.T, q *queue, want ...string) {
	t.Helper()
	got := ids(q)
	if len(got) != len(want) {
		t.Fatalf("queue order = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("queue order = %v, want %v", got, want)
		}
	}
}

func TestQueueOrdersByPriorityThenArrival(t *testing.T) {
	q := &queue{}
	q.Insert(&Job{ID: "a", Priority: 0})
	q.Insert(&Job{ID: "b", Priority: 5})
	q.Insert(&Job{ID: "c", Priority: 5})
	q.Insert(&Job{ID: "d", Priority: 3})

	// b and c tie on priority and keep arrival order.
	assertOrder(t, q, "b", "c", "d", "a")
}

func TestQueueRushGoesToHead(t *testing.T) {
	q := &queue{}
	q.Insert(&Job{ID: "a", Priority: 9})
	q.Insert(&Job{ID: "r1", Rush: true})
	q.Insert(&Job{ID: "b", Priority: 9})
	q.Insert(&Job{ID: "r2", Rush: true})

	// A later rush lands ahead of an earlier one; normals never pass a rush.
	assertOrder(t, q, "r2", "r1", "a", "b")
}

func TestQueuePushFrontBeatsRush(t *testing.T) {
	q := &queue{}
	q.Insert(&Job{ID: "r1", Rush: true})
	q.PushFront(&Job{ID: "displaced", Priority: 0})

	assertOrder(t, q, "displaced", "r1")
}

func TestQueueRemove(t *testing.T) {
	q := &queue{}
	q.Insert(&Job{ID: "a"})
	q.Insert(&Job{ID: "b"})

	if got := q.Remove("a"); got == nil || got.ID != "a" {
		t.Fatalf("expected to remove a, got %v", got)
	}
	if got := q.Remove("ghost"); got != nil {
		t.Fatalf("removing an unknown id should return nil")
	}
	assertOrder(t, q, "b")
}
