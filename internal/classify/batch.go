package classify

// Batch accumulates cache-missed items until one provider call can cover
// them. It is not safe for concurrent use; each run owns its own.
type Batch struct {
	size  int
	items []BatchItem
}

// NewBatch creates an accumulator that is full at size items.
func NewBatch(size int) *Batch {
	if size < 1 {
		size = 1
	}
	return &Batch{size: size, items: make([]BatchItem, 0, size)}
}

// Add appends an item and reports whether the batch is now full.
func (b *Batch) Add(item BatchItem) bool {
	b.items = append(b.items, item)
	return len(b.items) >= b.size
}

// Len returns the number of pending items.
func (b *Batch) Len() int { return len(b.items) }

// Drain returns the pending items and empties the batch.
func (b *Batch) Drain() []BatchItem {
	out := b.items
	b.items = make([]BatchItem, 0, b.size)
	return out
}
