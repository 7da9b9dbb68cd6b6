package ecs

import "github.com/assetstream/streamer/internal/core/resource"

// Entity is the record kept for each live entity. Components live in
// their own stores; only the debug label is stored here.
type Entity struct {
	Label string
}

// EntityID is a generational handle: destroying an entity invalidates every
// copy of its id, and the slot is only reused under a newer generation.
type EntityID = resource.Handle[Entity]

// EntityPool issues entity ids from a ResourceManager.
type EntityPool struct {
	entities *resource.ResourceManager[Entity]
}

func NewEntityPool() *EntityPool {
	return &EntityPool{entities: resource.NewResourceManagerWithCapacity[Entity](1024)}
}

func (p *EntityPool) Create(label string) EntityID {
	return p.entities.Insert(Entity{Label: label})
}

func (p *EntityPool) Alive(id EntityID) bool {
	return p.entities.Contains(id)
}

func (p *EntityPool) Label(id EntityID) string {
	e, err := p.entities.Get(id)
	if err != nil {
		return ""
	}
	return e.Label
}

// Destroy ignores stale ids.
func (p *EntityPool) Destroy(id EntityID) bool {
	_, err := p.entities.Remove(id)
	return err == nil
}

func (p *EntityPool) Len() int { return p.entities.Len() }
