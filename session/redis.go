package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotOwner indicates a session id is routed to a different node than the
// one handling the current request.
var ErrNotOwner = errors.New("session: routed to a different node")

// NodeDirectory maps session ids to the node that owns the in-memory Session
// for that id, backed by Redis. A gateway deployment with more than one node
// needs this because a session's live event log and subscriber set live only
// in the process memory of the node that created it; any other node that
// receives a follow-up request for the same chatId must know where to
// forward it instead of creating a duplicate, disconnected session.
type NodeDirectory struct {
	rdb    *redis.Client
	nodeID string
	ttl    time.Duration
}

// NewNodeDirectory constructs a NodeDirectory. nodeID identifies this
// process; ttl bounds how long a routing entry survives without renewal and
// should track the Store's own session TTL.
func NewNodeDirectory(rdb *redis.Client, nodeID string, ttl time.Duration) *NodeDirectory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &NodeDirectory{rdb: rdb, nodeID: nodeID, ttl: ttl}
}

func key(sessionID string) string {
	return fmt.Sprintf("retrieval-engine:session-node:%s", sessionID)
}

// Claim records that this node owns sessionID, refreshing its TTL. Call this
// whenever Store.Create allocates a new session.
func (d *NodeDirectory) Claim(ctx context.Context, sessionID string) error {
	return d.rdb.Set(ctx, key(sessionID), d.nodeID, d.ttl).Err()
}

// Renew refreshes sessionID's TTL without changing its owning node. Call
// this alongside Session activity so the routing entry does not outlive (or
// expire before) the session it describes.
func (d *NodeDirectory) Renew(ctx context.Context, sessionID string) error {
	return d.rdb.Expire(ctx, key(sessionID), d.ttl).Err()
}

// Owner returns the node id that owns sessionID, or "" if no node currently
// claims it (either never claimed, or expired).
func (d *NodeDirectory) Owner(ctx context.Context, sessionID string) (string, error) {
	owner, err := d.rdb.Get(ctx, key(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return owner, nil
}

// Release removes sessionID's routing entry, e.g. when a Store tears the
// session down on TTL expiry.
func (d *NodeDirectory) Release(ctx context.Context, sessionID string) error {
	return d.rdb.Del(ctx, key(sessionID)).Err()
}

// IsLocal reports whether this node owns sessionID, looking it up in Redis
// if necessary. Handlers use this to decide between serving a request
// locally and returning ErrNotOwner so the caller can redirect.
func (d *NodeDirectory) IsLocal(ctx context.Context, sessionID string) (bool, error) {
	owner, err := d.Owner(ctx, sessionID)
	if err != nil {
		return false, err
	}
	return owner == d.nodeID, nil
}
