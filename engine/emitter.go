package engine

// Emitter is a small subscriber list adapters can embed to satisfy Subscribe.
type Emitter struct {
	nextID    int
	listeners map[int]func(Event)
	order     []int
}

func (e *Emitter) Subscribe(fn func(Event)) (unsubscribe func()) {
	if e.listeners == nil {
		e.listeners = make(map[int]func(Event))
	}
	id := e.nextID
	e.nextID++
	e.listeners[id] = fn
	e.order = append(e.order, id)

	return func() {
		delete(e.listeners, id)
		for i, v := range e.order {
			if v == id {
				e.order = append(e.order[:i], e.order[i+1:]...)
				break
			}
		}
	}
}

// Emit delivers ev to every subscriber in subscription order.
func (e *Emitter) Emit(ev Event) {
	for _, id := range append([]int(nil), e.order...) {
		if fn, ok := e.listeners[id]; ok {
			fn(ev)
		}
	}
}
