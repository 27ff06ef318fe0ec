package ecs

// EntityID identifies an entity within one World. IDs are handed out by a
// monotonic counter starting at 1 and are never reissued; 0 is the null id.
type EntityID uint64

func (id EntityID) IsZero() bool { return id == 0 }

// EntityPool allocates entity ids and tracks which are alive.
type EntityPool struct {
	alive  map[EntityID]struct{}
	nextID EntityID
}

func NewEntityPool() *EntityPool {
	return &EntityPool{
		alive:  make(map[EntityID]struct{}, 1024),
		nextID: 1,
	}
}

func (p *EntityPool) Create() EntityID {
	id := p.nextID
	p.nextID++
	p.alive[id] = struct{}{}
	return id
}

// Restore marks id alive without going through the counter. The counter is
// advanced past id so later Create calls cannot collide with it.
// Returns false if id is zero or already alive.
func (p *EntityPool) Restore(id EntityID) bool {
	if id.IsZero() {
		return false
	}
	if _, ok := p.alive[id]; ok {
		return false
	}
	p.alive[id] = struct{}{}
	if id >= p.nextID {
		p.nextID = id + 1
	}
	return true
}

func (p *EntityPool) Alive(id EntityID) bool {
	_, ok := p.alive[id]
	return ok
}

// Destroy releases id. Unknown or already destroyed ids are ignored.
func (p *EntityPool) Destroy(id EntityID) bool {
	if _, ok := p.alive[id]; !ok {
		return false
	}
	delete(p.alive, id)
	return true
}

func (p *EntityPool) Len() int { return len(p.alive) }

// Reset forgets every live entity. The counter keeps its position.
func (p *EntityPool) Reset() {
	clear(p.alive)
}

// Each calls fn for every live entity in unspecified order.
func (p *EntityPool) Each(fn func(EntityID)) {
	for id := range p.alive {
		fn(id)
	}
}
