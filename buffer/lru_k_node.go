package buffer

// invalidFrameID marks "no frame" in places that need a sentinel rather
// than an (int, bool) pair.
const invalidFrameID = -1

// lrukNode tracks the bounded access history for one frame (spec §3
// "LRU-k node").
type lrukNode struct {
	frameID     int
	k           int
	history     []int64 // up to k most recent access timestamps, oldest first
	isEvictable bool
}

func newLRUKNode(frameID, k int) *lrukNode {
	return &lrukNode{frameID: frameID, k: k}
}

func (n *lrukNode) recordAccess(timestamp int64) {
	n.history = append(n.history, timestamp)
	if len(n.history) > n.k {
		n.history = n.history[len(n.history)-n.k:]
	}
}

// backwardKDistance returns the frame's backward k-distance as of now,
// and whether it is +∞ (fewer than k recorded accesses).
func (n *lrukNode) backwardKDistance(now int64) (distance int64, isInf bool) {
	if len(n.history) < n.k {
		return 0, true
	}
	return now - n.history[0], false
}

// earliestAccess is the tie-breaker for +∞ frames: the oldest timestamp
// still held in history, or -1 if the frame has never been accessed.
func (n *lrukNode) earliestAccess() int64 {
	if len(n.history) == 0 {
		return -1
	}
	return n.history[0]
}
