package store

import (
	"github.com/vins-anity/trailpack/core/db"
)

// Stores provides typed accessors over a pgx pool or transaction. Bind
// it to a transaction to make multi-store operations atomic.
type Stores struct {
	q db.DBTX
}

func NewStores(q db.DBTX) *Stores {
	return &Stores{q: q}
}

func (s *Stores) Tasks() TaskStore {
	return &taskStore{q: s.q}
}

func (s *Stores) Events() EventStore {
	return &eventStore{q: s.q}
}

func (s *Stores) Packets() PacketStore {
	return &packetStore{q: s.q}
}

func (s *Stores) Deliveries() DeliveryStore {
	return &deliveryStore{q: s.q}
}

func (s *Stores) Workspaces() WorkspaceStore {
	return &workspaceStore{q: s.q}
}
