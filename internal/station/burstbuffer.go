package station

// burstBuffer is the ordered ring of recently-broadcast frames described in
// spec.md §3: newest at the tail, sized so a new subscriber can be caught up
// to at least targetUS of audio without the buffer growing unbounded.
//
// Invariant, maintained by append: the summed duration of every frame except
// the head is strictly less than targetUS, while the summed duration of the
// whole buffer is >= targetUS (once enough audio has played to fill it).
type burstBuffer struct {
	frames   []bufferedFrame
	targetUS int64
}

func newBurstBuffer(targetUS int64) *burstBuffer {
	return &burstBuffer{targetUS: targetUS}
}

func (b *burstBuffer) append(f bufferedFrame) {
	b.frames = append(b.frames, f)
	for len(b.frames) > 1 {
		var tailSum int64
		for _, fr := range b.frames[1:] {
			tailSum += fr.durationUS
		}
		if tailSum < b.targetUS {
			break
		}
		b.frames = b.frames[1:]
	}
}

// snapshot returns a copy of the buffered frames in order, oldest first, and
// their total duration in microseconds — used both to catch up a new
// subscriber and to report burst_buffer_ms on its Listener entry.
func (b *burstBuffer) snapshot() ([]bufferedFrame, int64) {
	out := make([]bufferedFrame, len(b.frames))
	copy(out, b.frames)

	var total int64
	for _, f := range out {
		total += f.durationUS
	}
	return out, total
}
