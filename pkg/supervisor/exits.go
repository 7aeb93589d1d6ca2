package supervisor

import (
	"sync"

	"github.com/signstream/signstream/pkg/stage"
)

type exitChans struct {
	mu   sync.Mutex
	list []*exitChan
}

func (ec *exitChans) add(exitC *exitChan) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.list = append(ec.list, exitC)
}

type exitChan struct {
	c    <-chan stage.ExitEvent
	name string
}

func newExitChan(name string, c <-chan stage.ExitEvent) *exitChan {
	return &exitChan{
		c:    c,
		name: name,
	}
}

// mergeExits merges the exit channels of every launched stage.
// Based on https://blog.golang.org/pipelines.
func mergeExits(cs ...*exitChan) <-chan stage.ExitEvent {
	var wg sync.WaitGroup
	// The output channel holds as many events as there are stages, so it
	// never blocks even if the consumer stops reading early.
	out := make(chan stage.ExitEvent, len(cs))

	output := func(c *exitChan) {
		defer wg.Done()
		if c.c == nil {
			return
		}
		for ev := range c.c {
			out <- ev
		}
	}
	wg.Add(len(cs))
	for _, c := range cs {
		go output(c)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}
