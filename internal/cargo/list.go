package cargo

import "fmt"

// listCache carries the aggregate bookkeeping shared by the vehicle and
// station cargo lists: the total unit count and the count-weighted sum of
// transit periods. Both lists embed it and feed every mutation through
// add/remove so the aggregates stay exact.
type listCache struct {
	count      uint
	periodsSum uint64 // Σ packet.Count() * packet.PeriodsInTransit()
}

// add accounts for a whole packet entering the list.
func (c *listCache) add(p *Packet) {
	c.count += uint(p.count)
	c.periodsSum += uint64(p.count) * uint64(p.periods)
}

// remove accounts for count units of p leaving the list. The amount is
// explicit because a packet may be partially removed (Split/Reduce)
// before the cache update, so it cannot be inferred from the packet.
func (c *listCache) remove(p *Packet, count uint) {
	if count > c.count {
		panic(fmt.Sprintf("cargo: removing %d units from a list of %d", count, c.count))
	}
	c.count -= count
	c.periodsSum -= uint64(count) * uint64(p.periods)
}

// reset zeroes the aggregates (cache rebuild, pool cleanup).
func (c *listCache) reset() {
	c.count = 0
	c.periodsSum = 0
}

// TotalCount returns the cached number of cargo units in the list.
func (c *listCache) TotalCount() uint { return c.count }

// PeriodsInTransit returns the average transit periods of the cargo in
// the list, rounded down. Zero when the list is empty.
func (c *listCache) PeriodsInTransit() uint {
	if c.count == 0 {
		return 0
	}
	return uint(c.periodsSum / uint64(c.count))
}

// packetQueue is a slice-backed FIFO of packet references with O(1)
// amortized insertion and removal at both ends. Front of the queue is
// the first packet considered by any moving or merging operation.
type packetQueue struct {
	items []*Packet
	head  int
}

func (q *packetQueue) Len() int { return len(q.items) - q.head }

func (q *packetQueue) At(i int) *Packet { return q.items[q.head+i] }

func (q *packetQueue) Front() *Packet { return q.items[q.head] }

func (q *packetQueue) Back() *Packet { return q.items[len(q.items)-1] }

func (q *packetQueue) PushBack(p *Packet) { q.items = append(q.items, p) }

func (q *packetQueue) PopFront() *Packet {
	p := q.items[q.head]
	q.items[q.head] = nil
	q.head++
	if q.head > len(q.items)/2 && q.head > 16 {
		q.items = append(q.items[:0], q.items[q.head:]...)
		q.head = 0
	}
	return p
}

func (q *packetQueue) PopBack() *Packet {
	p := q.items[len(q.items)-1]
	q.items = q.items[:len(q.items)-1]
	return p
}

func (q *packetQueue) Clear() {
	q.items = nil
	q.head = 0
}

// tryMerge folds donor into recipient when the mergeability predicate
// holds and the combined count fits in one packet. On success the donor
// has been destroyed; cache bookkeeping is the caller's job.
func tryMerge(pool *Pool, recipient, donor *Packet) bool {
	if !Mergeable(recipient, donor) {
		return false
	}
	if uint(recipient.count)+uint(donor.count) > MaxPacketCount {
		return false
	}
	recipient.Merge(pool, donor)
	return true
}
