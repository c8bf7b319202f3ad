package pipeline

import "time"

// A Trigger asks for one cycle. Triggers are processed in arrival order.
type Trigger struct {
	Seq    uint64
	Stamp  time.Time
	Source string
}
