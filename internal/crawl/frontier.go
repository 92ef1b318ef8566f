package crawl

import "container/heap"

// item is one frontier entry: a URL queued at a given depth with the
// relevance score that earned it a slot.
type item struct {
	url       string
	depth     int
	relevance float64
	source    string
	index     int
}

// priorityFrontier orders items by relevance score (descending), tie-broken
// by depth (shallowest first), per spec §4.9.
type priorityFrontier []*item

func (f priorityFrontier) Len() int { return len(f) }

func (f priorityFrontier) Less(i, j int) bool {
	if f[i].relevance != f[j].relevance {
		return f[i].relevance > f[j].relevance
	}
	return f[i].depth < f[j].depth
}

func (f priorityFrontier) Swap(i, j int) {
	f[i], f[j] = f[j], f[i]
	f[i].index = i
	f[j].index = j
}

func (f *priorityFrontier) Push(x any) {
	it := x.(*item)
	it.index = len(*f)
	*f = append(*f, it)
}

func (f *priorityFrontier) Pop() any {
	old := *f
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*f = old[:n-1]
	return it
}

var _ heap.Interface = (*priorityFrontier)(nil)
