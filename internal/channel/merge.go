package channel

import (
	"context"
	"sync"
)

// Merge forwards every value from the inputs into out until all inputs are
// closed, then closes out. Order is preserved per input only. Forwarding stops
// early when ctx ends; out is still closed.
func Merge[T any](ctx context.Context, out *Buffer[T], inputs ...<-chan T) {
	var wg sync.WaitGroup
	wg.Add(len(inputs))
	for _, in := range inputs {
		go func(in <-chan T) {
			defer wg.Done()
			for v := range in {
				if !out.Send(ctx, v) {
					return
				}
			}
		}(in)
	}
	go func() {
		wg.Wait()
		out.Close()
	}()
}
