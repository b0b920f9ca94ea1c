package swim

import "time"

// runScheduler is the protocol-period loop: probe exactly one peer per
// period at a fixed cadence, round-robin over the traversal order,
// reshuffling (Fisher-Yates) whenever the order wraps. At most one
// scheduler-driven probe is ever in flight; indirect probes triggered by
// inbound ping-reqs run independently and may overlap it.
func (e *Engine) runScheduler(stopCh chan struct{}) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.config.ProtocolPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			e.runPeriod()
		}
	}
}

// runPeriod probes the next peer in traversal order and advances
// next_index, reshuffling on wraparound.
func (e *Engine) runPeriod() {
	e.mu.Lock()
	if len(e.order) == 0 {
		e.mu.Unlock()
		return
	}
	if e.nextIdx >= len(e.order) {
		e.nextIdx = 0
	}
	id := e.order[e.nextIdx]
	e.nextIdx++
	if e.nextIdx >= len(e.order) {
		e.nextIdx = 0
		e.shuffleLocked()
	}
	e.mu.Unlock()

	e.probe(id)
}

// shuffleLocked performs a Fisher-Yates shuffle of the traversal order
// in place.
func (e *Engine) shuffleLocked() {
	e.rng.Shuffle(len(e.order), func(i, j int) {
		e.order[i], e.order[j] = e.order[j], e.order[i]
	})
}
