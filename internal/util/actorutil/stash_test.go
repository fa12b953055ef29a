package actorutil

import (
	"testing"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type release struct{}

func TestStashReplaysInOrderAndDropsOldest(t *testing.T) {
	as := NewActorSystemWithZapLogger(zap.NewNop())
	defer as.Shutdown()

	replayed := make(chan int, 8)
	stash := &Stash{Limit: 3}
	holding := true
	pid := as.Root.Spawn(actor.PropsFromFunc(func(ctx actor.Context) {
		switch msg := ctx.Message().(type) {
		case release:
			holding = false
			stash.UnstashAll(ctx)
		case int:
			if holding {
				stash.Stash(ctx, msg)
				return
			}
			replayed <- msg
		}
	}))

	for i := 1; i <= 5; i++ {
		as.Root.Send(pid, i)
	}
	as.Root.Send(pid, release{})

	got := []int{}
	for range 3 {
		select {
		case v := <-replayed:
			got = append(got, v)
		case <-time.After(2 * time.Second):
			require.FailNow(t, "stash not replayed", "got %v", got)
		}
	}
	assert.Equal(t, []int{3, 4, 5}, got)
	assert.Equal(t, 2, stash.Dropped())
	assert.Zero(t, stash.Len())
}
