package actorutil

import (
	"github.com/asynkron/protoactor-go/actor"
)

// DEFAULT_STASH_LIMIT bounds messages held while an actor waits on a dependency,
// e.g. status events queued during an MQTT reconnect.
const DEFAULT_STASH_LIMIT = 256

// Stash holds messages for later replay with their original sender.
// When full, the oldest message is dropped.
type Stash struct {
	Limit   int
	pending []stashed
	dropped int
}

type stashed struct {
	msg    any
	sender *actor.PID
}

func (s *Stash) limit() int {
	if s.Limit <= 0 {
		return DEFAULT_STASH_LIMIT
	}
	return s.Limit
}

func (s *Stash) Stash(ctx actor.Context, msg any) {
	if len(s.pending) >= s.limit() {
		s.pending = s.pending[1:]
		s.dropped++
	}
	s.pending = append(s.pending, stashed{
		msg:    msg,
		sender: ctx.Sender(),
	})
}

func (s *Stash) Len() int {
	return len(s.pending)
}

// Dropped counts messages discarded because the stash was full.
func (s *Stash) Dropped() int {
	return s.dropped
}

func (s *Stash) UnstashAll(ctx actor.Context) {
	for _, elem := range s.pending {
		ctx.RequestWithCustomSender(ctx.Self(), elem.msg, elem.sender)
	}
	s.pending = nil
}

func (s *Stash) UnstashOldest(ctx actor.Context) {
	if len(s.pending) == 0 {
		return
	}
	first := s.pending[0]
	s.pending = s.pending[1:]
	ctx.RequestWithCustomSender(ctx.Self(), first.msg, first.sender)
}
