package id

import (
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	node *snowflake.Node
	once sync.Once
)

// Init configures the process-wide Snowflake node. Every deployed
// instance must use a distinct node ID or generated IDs can collide.
func Init(nodeID int64) error {
	var err error
	once.Do(func() {
		node, err = snowflake.NewNode(nodeID)
	})
	return err
}

// New returns a time-ordered, globally unique int64 ID. Events, packets
// and delivery records all draw from the same node so IDs sort by
// creation time.
func New() int64 {
	return node.Generate().Int64()
}
