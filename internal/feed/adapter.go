package feed

import "context"

// Adapter is one upstream transport. Run blocks until ctx is canceled,
// emitting normalized events on out. Adapters own their retry/reconnect
// state and never return early on transient upstream failures; a returned
// error means the loop itself broke and the supervisor should restart it.
type Adapter interface {
	Name() string
	Run(ctx context.Context, out chan<- Event) error
}
