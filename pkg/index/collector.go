package index

import "sort"

// ComparableDoc pairs a ranking feature (a relevance score) with a document
// identity. Two entries tie-break on Doc ascending so that sorting a slice
// of these is always stable regardless of insertion order.
type ComparableDoc struct {
	Feature float64
	Doc     int64
}

// TopNComputer keeps the top N (score, doc) pairs seen so far, culling the
// rest once the buffer fills past 2*N using a median-threshold so cheap
// rejections never require a full re-sort.
type TopNComputer struct {
	buffer    []ComparableDoc
	topN      int
	threshold *float64
}

// NewTopNComputer allocates a computer that will retain the top topN
// entries pushed into it. topN is clamped to at least 1.
func NewTopNComputer(topN int) *TopNComputer {
	if topN < 1 {
		topN = 1
	}

	return &TopNComputer{
		buffer: make([]ComparableDoc, 0, topN*2),
		topN:   topN,
	}
}

// PushOrUpdate records feature for doc, raising doc's existing feature if
// the incoming one is larger. Entries below the current culling threshold
// are dropped without ever entering the buffer.
func (c *TopNComputer) PushOrUpdate(feature float64, doc int64) {
	if c.threshold != nil && feature < *c.threshold {
		return
	}

	for i := range c.buffer {
		if c.buffer[i].Doc == doc {
			if feature > c.buffer[i].Feature {
				c.buffer[i].Feature = feature
			}

			return
		}
	}

	if len(c.buffer) == cap(c.buffer) {
		c.truncateTopN()

		if feature < *c.threshold {
			return
		}
	}

	c.buffer = append(c.buffer, ComparableDoc{Feature: feature, Doc: doc})
}

func (c *TopNComputer) truncateTopN() {
	sort.Slice(c.buffer, func(i, j int) bool {
		if c.buffer[i].Feature != c.buffer[j].Feature {
			return c.buffer[i].Feature > c.buffer[j].Feature
		}

		return c.buffer[i].Doc < c.buffer[j].Doc
	})

	if len(c.buffer) > c.topN {
		median := c.buffer[c.topN-1].Feature
		c.buffer = c.buffer[:c.topN]
		c.threshold = &median
	}
}

// IntoSortedSlice returns the retained entries ordered by feature
// descending, ties broken by Doc ascending. It consumes the computer's
// internal state; callers should not reuse it afterward.
func (c *TopNComputer) IntoSortedSlice() []ComparableDoc {
	if len(c.buffer) > c.topN {
		c.truncateTopN()
	}

	sort.Slice(c.buffer, func(i, j int) bool {
		if c.buffer[i].Feature != c.buffer[j].Feature {
			return c.buffer[i].Feature > c.buffer[j].Feature
		}

		return c.buffer[i].Doc < c.buffer[j].Doc
	})

	return c.buffer
}
