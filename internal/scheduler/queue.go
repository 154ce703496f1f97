package scheduler

import (
	"container/heap"

	"github.com/nexuscore/inference-core/internal/job"
)

// priorityQueue orders jobs by priority descending, then by submission time
// ascending (FIFO among equal priorities) — spec §4.1, §8 scenario 1.
type priorityQueue []*job.Job

func (pq priorityQueue) Len() int { return len(pq) }

func (pq priorityQueue) Less(i, k int) bool {
	if pq[i].Priority != pq[k].Priority {
		return pq[i].Priority > pq[k].Priority
	}
	return pq[i].SubmittedAt.Before(pq[k].SubmittedAt)
}

func (pq priorityQueue) Swap(i, k int) { pq[i], pq[k] = pq[k], pq[i] }

func (pq *priorityQueue) Push(x interface{}) {
	*pq = append(*pq, x.(*job.Job))
}

func (pq *priorityQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*pq = old[:n-1]
	return item
}

// jobHeap wraps priorityQueue behind the container/heap interface so callers
// don't need to remember to call heap.Init/Fix.
type jobHeap struct {
	pq priorityQueue
}

func newJobHeap() *jobHeap {
	h := &jobHeap{pq: priorityQueue{}}
	heap.Init(&h.pq)
	return h
}

func (h *jobHeap) push(j *job.Job) {
	heap.Push(&h.pq, j)
}

func (h *jobHeap) pop() *job.Job {
	return heap.Pop(&h.pq).(*job.Job)
}

func (h *jobHeap) len() int {
	return h.pq.Len()
}
