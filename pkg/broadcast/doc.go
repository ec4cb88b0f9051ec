// Package broadcast is a generic in-process fan-out. The file service uses it
// as its event bus: every committed file operation is broadcast once, and
// consumers such as the search indexer subscribe to it.
//
//	bus := broadcast.NewMemoryBroadcaster[files.Event](256)
//	sub := bus.Subscribe(ctx)
//	go func() {
//		for ev := range sub.C() {
//			handle(ev)
//		}
//	}()
//	_ = bus.Broadcast(ctx, ev)
package broadcast
