package ecs

// World owns the entity pool, the component registry and the queue of
// entities to destroy at the end of the tick.
type World struct {
	pool         *EntityPool
	registry     *Registry
	destroyQueue []EntityID
}

func NewWorld() *World {
	return &World{
		pool:         NewEntityPool(),
		registry:     NewRegistry(),
		destroyQueue: make([]EntityID, 0, 16),
	}
}

func (w *World) Pool() *EntityPool   { return w.pool }
func (w *World) Registry() *Registry { return w.registry }

func (w *World) CreateEntity(label string) EntityID {
	return w.pool.Create(label)
}

func (w *World) Alive(id EntityID) bool {
	return w.pool.Alive(id)
}

// MarkForDestruction queues an entity for end-of-tick cleanup.
func (w *World) MarkForDestruction(id EntityID) {
	w.destroyQueue = append(w.destroyQueue, id)
}

func (w *World) PendingDestroy() int { return len(w.destroyQueue) }

// FlushDestroyQueue destroys queued entities and clears their components.
// It returns how many were still alive.
func (w *World) FlushDestroyQueue() int {
	n := 0
	for _, id := range w.destroyQueue {
		if !w.pool.Alive(id) {
			continue
		}
		w.registry.RemoveAll(id)
		w.pool.Destroy(id)
		n++
	}
	w.destroyQueue = w.destroyQueue[:0]
	return n
}
