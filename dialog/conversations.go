package dialog

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pkg/errors"

	"github.com/flowchat-io/flowchat/flow"
	"github.com/flowchat-io/flowchat/internal/version"
	"github.com/flowchat-io/flowchat/store"
)

// UserConversations is the bounded in-memory working set of conversation
// states. A miss is filled from the newest stored snapshot; at capacity the
// least frequently used idle entry is evicted, ties broken by insertion order.
// Eviction never loses state because every turn is appended to the store.
type UserConversations struct {
	mu       sync.Mutex
	capacity int
	domain   *flow.Domain
	store    *store.Store
	version  string
	entries  map[string]*conversationEntry
	seq      uint64
}

type conversationEntry struct {
	state     *ConversationState
	frequency uint64
	seq       uint64

	// refs counts turns that hold or await this entry's lease. Guarded by
	// the cache mutex; an entry with refs > 0 must not be evicted, otherwise
	// a concurrent checkout would mint a second state for the same user.
	refs int

	// turnMu serializes turns per user: a checked-out state is owned by one
	// turn until released.
	turnMu sync.Mutex
}

// Lease is an exclusive hold on one user's conversation state for the
// duration of a turn.
type Lease struct {
	State *ConversationState

	cache *UserConversations
	entry *conversationEntry
}

func (l *Lease) Release() {
	l.entry.turnMu.Unlock()
	l.cache.mu.Lock()
	l.entry.refs--
	l.cache.mu.Unlock()
}

func NewUserConversations(capacity int, domain *flow.Domain, s *store.Store, version string) (*UserConversations, error) {
	if capacity <= 0 {
		return nil, errors.Errorf("conversation cache capacity must be positive, got %d", capacity)
	}
	if domain == nil {
		return nil, errors.New("conversation cache requires a domain")
	}
	return &UserConversations{
		capacity: capacity,
		domain:   domain,
		store:    s,
		version:  version,
		entries:  make(map[string]*conversationEntry, capacity),
	}, nil
}

// Checkout returns the user's conversation state under an exclusive lease.
// The caller must Release the lease when the turn is done.
func (c *UserConversations) Checkout(ctx context.Context, userID, userName string) (*Lease, error) {
	if userID == "" {
		return nil, errors.New("user id required")
	}

	c.mu.Lock()
	entry, ok := c.entries[userID]
	if ok {
		entry.frequency++
		entry.refs++
		c.mu.Unlock()
		entry.turnMu.Lock()
		return &Lease{State: entry.state, cache: c, entry: entry}, nil
	}
	c.mu.Unlock()

	// Fill the miss outside the cache lock; the store round trip may be slow.
	state, err := c.restore(ctx, userID, userName)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	// Another turn may have raced the fill; prefer the installed entry.
	if entry, ok = c.entries[userID]; !ok {
		if len(c.entries) >= c.capacity {
			c.evictLocked()
		}
		c.seq++
		entry = &conversationEntry{state: state, frequency: 1, seq: c.seq}
		c.entries[userID] = entry
	} else {
		entry.frequency++
	}
	entry.refs++
	c.mu.Unlock()

	entry.turnMu.Lock()
	return &Lease{State: entry.state, cache: c, entry: entry}, nil
}

// evictLocked removes the least frequently used idle entry, ties broken by
// the oldest insertion. Entries with outstanding leases are skipped; when
// every entry is mid-turn nothing is evicted and the working set briefly
// exceeds its capacity. Callers hold c.mu.
func (c *UserConversations) evictLocked() {
	var victimID string
	var victim *conversationEntry
	for userID, entry := range c.entries {
		if entry.refs > 0 {
			continue
		}
		if victim == nil || entry.frequency < victim.frequency ||
			(entry.frequency == victim.frequency && entry.seq < victim.seq) {
			victimID, victim = userID, entry
		}
	}
	if victim == nil {
		return
	}
	delete(c.entries, victimID)
	cacheEvictions.Inc()
	slog.Debug("dialog: evicted conversation from working set", "user_id", victimID, "frequency", victim.frequency)
}

// Warm fills the working set with the newest snapshot of each recently seen
// user, up to capacity. Snapshots that fail to rebuild are skipped; their
// users fall back to the lazy fill on first checkout.
func (c *UserConversations) Warm(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	records, err := c.store.ListLatestConversationRecords(ctx, c.capacity)
	if err != nil {
		return errors.Wrap(err, "failed to warm conversation working set")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, record := range records {
		if len(c.entries) >= c.capacity {
			break
		}
		if _, ok := c.entries[record.UserID]; ok {
			continue
		}
		state, err := c.stateFromRecord(record)
		if err != nil {
			slog.Warn("dialog: skipping unusable snapshot during warm-up", "user_id", record.UserID, "error", err)
			continue
		}
		c.seq++
		c.entries[record.UserID] = &conversationEntry{state: state, frequency: 1, seq: c.seq}
	}
	slog.Info("dialog: conversation working set warmed", "resident", len(c.entries))
	return nil
}

// restore rebuilds a state from the newest stored snapshot, or creates a
// fresh one when the user has no usable history.
func (c *UserConversations) restore(ctx context.Context, userID, userName string) (*ConversationState, error) {
	if c.store == nil {
		return NewConversationState(userID, userName, c.version), nil
	}

	record, err := c.store.GetLatestConversationRecord(ctx, userID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load conversation of user %s", userID)
	}
	if record == nil {
		return NewConversationState(userID, userName, c.version), nil
	}

	state, err := c.stateFromRecord(record)
	if err != nil {
		// The snapshot may predate a domain change, or the row was damaged.
		slog.Warn("dialog: stored snapshot unusable, starting fresh", "user_id", userID, "error", err)
		return NewConversationState(userID, userName, c.version), nil
	}
	if userName != "" {
		state.UserName = userName
	}
	return state, nil
}

// stateFromRecord rebuilds a runtime state from one stored record. Snapshots
// written by a newer build than the running one are restored anyway; the
// mismatch is only logged.
func (c *UserConversations) stateFromRecord(record *store.ConversationRecord) (*ConversationState, error) {
	snap, err := snapshotFromRecord(record)
	if err != nil {
		return nil, err
	}
	if snap.Version != c.version && !version.IsVersionGreaterOrEqualThan(c.version, snap.Version) {
		slog.Warn("dialog: snapshot written by a newer build",
			"user_id", record.UserID,
			"snapshot_version", snap.Version,
			"running_version", c.version,
		)
	}
	state, err := NewStateFromSnapshot(snap, c.domain)
	if err != nil {
		return nil, err
	}
	state.Version = c.version
	return state, nil
}

// Save appends the state's snapshot to the store.
func (c *UserConversations) Save(ctx context.Context, state *ConversationState) error {
	if c.store == nil {
		return nil
	}
	record, err := recordFromSnapshot(state.Export())
	if err != nil {
		return err
	}
	if _, err := c.store.CreateConversationRecord(ctx, record); err != nil {
		return errors.Wrapf(err, "failed to append conversation record of user %s", state.UserID)
	}
	return nil
}

// Len reports the number of resident conversations.
func (c *UserConversations) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
