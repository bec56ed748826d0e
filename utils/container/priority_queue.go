package container

import "container/heap"

// item 优先队列中单个元素
type item[T any] struct {
	Value    T       // 元素的值
	Priority float64 // 优先级（越小越优先）
	seq      uint64  // 加入顺序，优先级相同时先加入者优先
}

// priorityQueue 实现了heap.Interface
type priorityQueue[T any] []*item[T]

func (pq priorityQueue[T]) Len() int { return len(pq) }

func (pq priorityQueue[T]) Less(i, j int) bool {
	if pq[i].Priority != pq[j].Priority {
		return pq[i].Priority < pq[j].Priority
	}
	return pq[i].seq < pq[j].seq
}

func (pq priorityQueue[T]) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
}

func (pq *priorityQueue[T]) Push(x any) {
	*pq = append(*pq, x.(*item[T]))
}

func (pq *priorityQueue[T]) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // 避免内存泄漏
	*pq = old[0 : n-1]
	return item
}

// PriorityQueue 稳定的最小优先队列
// 说明：优先级相同的元素按加入顺序弹出，结果与堆的内部排列无关
type PriorityQueue[T any] struct {
	queue priorityQueue[T]
	seq   uint64
}

// NewPriorityQueue 创建优先队列
func NewPriorityQueue[T any]() *PriorityQueue[T] {
	return &PriorityQueue[T]{queue: make(priorityQueue[T], 0)}
}

// Len 当前队列长度
func (q *PriorityQueue[T]) Len() int {
	return len(q.queue)
}

// First 优先级数值最小的元素，不移除
func (q *PriorityQueue[T]) First() T {
	return q.queue[0].Value
}

func (q *PriorityQueue[T]) newItem(value T, priority float64) *item[T] {
	q.seq++
	return &item[T]{Value: value, Priority: priority, seq: q.seq}
}

// Push 加入元素（不维护堆结构）
// 说明：批量加入后需要调用Heapify重新建堆
func (q *PriorityQueue[T]) Push(value T, priority float64) {
	q.queue = append(q.queue, q.newItem(value, priority))
}

// Heapify 重新建堆
func (q *PriorityQueue[T]) Heapify() {
	heap.Init(&q.queue)
}

// HeapPush 加入元素并维护堆结构
func (q *PriorityQueue[T]) HeapPush(value T, priority float64) {
	heap.Push(&q.queue, q.newItem(value, priority))
}

// HeapPop 弹出优先级数值最小的元素
// 返回：value-元素值，priority-元素优先级
func (q *PriorityQueue[T]) HeapPop() (value T, priority float64) {
	item := heap.Pop(&q.queue).(*item[T])
	return item.Value, item.Priority
}
