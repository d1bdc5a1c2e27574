package media

import (
	"container/heap"

	"tallhat.dev/tonal/internal/errs"
)

// Translator is a Consumer-plus-Source pair: it consumes blocks in one
// format and produces the translated result on its own Source in another.
type Translator struct {
	*Source
	from Format
	conv func(Block) Block
}

// NewTranslator builds a Translator that converts from 'from' blocks into
// 'to'-formatted blocks via conv, then forwards them on its own Source.
func NewTranslator(from, to Format, conv func(Block) Block) *Translator {
	return &Translator{Source: NewSource(to), from: from, conv: conv}
}

// Format implements Consumer: the format this translator accepts.
func (t *Translator) Format() Format { return t.from }

// Consume implements Consumer: converts and re-forwards on t.Source.
func (t *Translator) Consume(block Block) int {
	out := t.conv(block)
	return t.Source.Forward(out)
}

// Factory describes one available translator: converts srcFormat to
// dstFormat at a fixed cost, used as an edge in the format graph that
// Registry.Resolve searches.
type Factory struct {
	SrcFormat Format
	DstFormat Format
	Cost      int
	New       func() *Translator
}

// Registry is the catalog of available translator factories, consulted
// when a Consumer's declared format differs from its Source's (spec.md
// §4.4 "Translator resolution").
type Registry struct {
	factories []Factory
}

// NewRegistry creates an empty translator factory catalog.
func NewRegistry() *Registry { return &Registry{} }

// Register adds f to the catalog.
func (r *Registry) Register(f Factory) {
	r.factories = append(r.factories, f)
}

// pqItem is one frontier entry of the path search: a reachable format, the
// total cost to reach it and the factories along the way.
type pqItem struct {
	format Format
	cost   int
	path   []Factory
	index  int
}

type priorityQueue []*pqItem

func (pq priorityQueue) Len() int            { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool  { return pq[i].cost < pq[j].cost }
func (pq priorityQueue) Swap(i, j int)       { pq[i], pq[j] = pq[j], pq[i]; pq[i].index, pq[j].index = i, j }
func (pq *priorityQueue) Push(x any) {
	item := x.(*pqItem)
	item.index = len(*pq)
	*pq = append(*pq, item)
}
func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*pq = old[:n-1]
	return item
}

// Resolve finds the minimum-cost chain of factories converting src into
// dst, via Dijkstra's algorithm over the format graph whose vertices are
// Formats and whose edges are registered factories. Returns
// errs.FormatMismatch if no path exists.
func (r *Registry) Resolve(src, dst Format) ([]Factory, error) {
	if src == dst {
		return nil, nil
	}

	best := map[Format]int{src: 0}
	pq := &priorityQueue{}
	heap.Init(pq)
	heap.Push(pq, &pqItem{format: src, cost: 0})

	for pq.Len() > 0 {
		cur := heap.Pop(pq).(*pqItem)
		if c, ok := best[cur.format]; ok && cur.cost > c {
			continue
		}
		if cur.format == dst {
			return cur.path, nil
		}
		for _, f := range r.factories {
			if f.SrcFormat != cur.format {
				continue
			}
			next := cur.cost + f.Cost
			if c, ok := best[f.DstFormat]; ok && c <= next {
				continue
			}
			best[f.DstFormat] = next
			path := make([]Factory, len(cur.path), len(cur.path)+1)
			copy(path, cur.path)
			path = append(path, f)
			heap.Push(pq, &pqItem{format: f.DstFormat, cost: next, path: path})
		}
	}
	return nil, errs.New(errs.FormatMismatch, "no translator path from %s to %s", src, dst)
}

// BuildChain instantiates the translators described by path and wires
// them consumer-to-source in sequence, returning the head (the Translator
// attached to the original source) and tail (the Translator whose Source
// produces the final dst format).
func BuildChain(path []Factory) (head, tail *Translator) {
	if len(path) == 0 {
		return nil, nil
	}
	head = path[0].New()
	prev := head
	for _, f := range path[1:] {
		next := f.New()
		prev.Source.Attach(next)
		prev = next
	}
	return head, prev
}
