package graph

import "sync"

// SafeGo runs fn on its own goroutine under wg, recovering any panic and
// routing it to onPanic instead of crashing the process. Used by the
// parallel-node execution paths so one misbehaving node cannot take down
// a whole graph run.
func SafeGo(wg *sync.WaitGroup, fn func(), onPanic func(panicVal any)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil && onPanic != nil {
				onPanic(r)
			}
		}()
		fn()
	}()
}
