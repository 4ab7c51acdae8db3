package tarpit

// wheel is the slot ring: one bucket per second of delay, with a
// 1-second cadence rotating the active index. A connection joins the
// active bucket at admission and never moves, so it is revisited exactly
// once per full rotation and the per-second workload stays near
// total/delay connections however many are held.
type wheel struct {
	slots [][]*conn
	// tick indexes the most recently activated slot.
	tick int
}

func newWheel(seconds int) *wheel {
	return &wheel{slots: make([][]*conn, seconds)}
}

// insert places c in the active slot, due for its first write attempt at
// most one full rotation from now.
func (x *wheel) insert(c *conn) {
	x.slots[x.tick] = append(x.slots[x.tick], c)
}

// sweep advances to the next slot and applies keep to every connection
// in it, discarding, without preserving order, those for which keep
// returns false.
func (x *wheel) sweep(keep func(*conn) bool) {
	x.tick = (x.tick + 1) % len(x.slots)
	x.slots[x.tick] = retainUnordered(x.slots[x.tick], keep)
}

// size returns the total number of held connections.
func (x *wheel) size() int {
	var n int
	for _, s := range x.slots {
		n += len(s)
	}
	return n
}

// drain empties every slot, passing each connection to f.
func (x *wheel) drain(f func(*conn)) {
	for i, s := range x.slots {
		for j, c := range s {
			f(c)
			s[j] = nil
		}
		x.slots[i] = s[:0]
	}
}
