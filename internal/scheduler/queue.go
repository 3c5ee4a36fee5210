package scheduler

// queue orders jobs for assignment. Rush jobs go straight to the head; a
// normal job lands immediately before the first queued normal job of strictly
// lower priority, so equal priorities keep arrival order.
type queue struct {
	jobs []*Job
}

func (q *queue) Len() int { return len(q.jobs) }

// Insert places a job by the standard rules. Used at admission and whenever
// a job re-competes after finishing an operation.
func (q *queue) Insert(j *Job) {
	if j.Rush {
		q.jobs = append([]*Job{j}, q.jobs...)
		return
	}
	at := len(q.jobs)
	for i, queued := range q.jobs {
		if queued.Rush {
			continue
		}
		if queued.Priority < j.Priority {
			at = i
			break
		}
	}
	q.jobs = append(q.jobs, nil)
	copy(q.jobs[at+1:], q.jobs[at:])
	q.jobs[at] = j
}

// PushFront puts a displaced job at the very head, ahead of rush jobs.
func (q *queue) PushFront(j *Job) {
	q.jobs = append([]*Job{j}, q.jobs...)
}

// Remove takes a job out of the queue by id.
func (q *queue) Remove(id string) *Job {
	for i, j := range q.jobs {
		if j.ID == id {
			q.jobs = append(q.jobs[:i], q.jobs[i+1:]...)
			return j
		}
	}
	return nil
}

// Jobs returns the queue in assignment order.
func (q *queue) Jobs() []*Job {
	out := make([]*Job, len(q.jobs))
	copy(out, q.jobs)
	return out
}
