package cmd

import (
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

const cooldownShards = 32

// Cooldowns stores, per actor and sub-command, the moment at which the
// sub-command may be run again. Entries live in memory only. Cooldowns is
// split in shards selected by the actor ID so that actors do not contend on a
// single lock. A zero Cooldowns is ready to use.
type Cooldowns struct {
	shards [cooldownShards]cooldownShard
}

type cooldownShard struct {
	mu sync.Mutex
	// entries holds, per actor, the expiry in Unix milliseconds per
	// sub-command name.
	entries map[uuid.UUID]map[string]int64
}

// NewCooldowns returns an empty Cooldowns.
func NewCooldowns() *Cooldowns {
	return &Cooldowns{}
}

func (c *Cooldowns) shard(actor uuid.UUID) *cooldownShard {
	return &c.shards[xxhash.Sum64(actor[:])%cooldownShards]
}

// Active reports if actor is still on cooldown for command at now.
func (c *Cooldowns) Active(actor uuid.UUID, command string, now time.Time) bool {
	expiry, ok := c.expiry(actor, command)
	return ok && expiry > now.UnixMilli()
}

// Remaining returns the whole number of seconds, rounded up, until the
// cooldown of actor for command ends. Zero is returned if there is no active
// cooldown.
func (c *Cooldowns) Remaining(actor uuid.UUID, command string, now time.Time) int {
	expiry, ok := c.expiry(actor, command)
	if !ok {
		return 0
	}
	left := expiry - now.UnixMilli()
	if left <= 0 {
		return 0
	}
	return int((left + 999) / 1000)
}

// Arm puts actor on cooldown for command for the number of seconds passed,
// starting at now. An existing cooldown is overwritten. Arm does nothing if
// seconds is zero or negative.
func (c *Cooldowns) Arm(actor uuid.UUID, command string, now time.Time, seconds int) {
	if seconds <= 0 {
		return
	}
	command = normalise(command)
	s := c.shard(actor)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries == nil {
		s.entries = make(map[uuid.UUID]map[string]int64)
	}
	commands, ok := s.entries[actor]
	if !ok {
		commands = make(map[string]int64, 1)
		s.entries[actor] = commands
	}
	commands[command] = now.UnixMilli() + int64(seconds)*1000
}

// Sweep removes the entries of every actor for which known returns false and
// returns the number of entries removed. It bounds the memory held for actors
// that left and does not affect gating of the actors kept.
func (c *Cooldowns) Sweep(known func(actor uuid.UUID) bool) int {
	removed := 0
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		for actor, commands := range s.entries {
			if !known(actor) {
				removed += len(commands)
				delete(s.entries, actor)
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Forget removes every entry of actor and returns how many were removed.
func (c *Cooldowns) Forget(actor uuid.UUID) int {
	s := c.shard(actor)
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.entries[actor])
	delete(s.entries, actor)
	return n
}

// Len returns the total number of entries stored, expired ones included.
func (c *Cooldowns) Len() int {
	n := 0
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		for _, commands := range s.entries {
			n += len(commands)
		}
		s.mu.Unlock()
	}
	return n
}

func (c *Cooldowns) expiry(actor uuid.UUID, command string) (int64, bool) {
	s := c.shard(actor)
	s.mu.Lock()
	defer s.mu.Unlock()

	expiry, ok := s.entries[actor][normalise(command)]
	return expiry, ok
}
