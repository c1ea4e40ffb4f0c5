// Package blueprint implements C9: the blueprint store and optimistic
// version lock. The store maps id -> Blueprint, keyed by a content-hash
// lock (node.VersionLock), per spec.md §4.7: create only accepts the
// sentinel lock node.NewSentinel; update/delete/replace require the
// client-presented lock to match current server state, failing with
// PreconditionRequired (absent) or Conflict (mismatched).
//
// Grounded on _examples/original_source/src/ice_api/api/blueprints.py's
// store/lock/patch semantics (ported from a FastAPI router + in-memory
// dict into a Redis-backed Go Store), and on episodic.go's Redis client
// usage for the storage shape itself.
package blueprint

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/smilemakc/flowcore/internal/apperrors"
	"github.com/smilemakc/flowcore/internal/node"
)

// Config configures a Store.
type Config struct {
	// TTL is spec.md §6's DRAFTSTORE_TTL: the store refreshes this TTL on
	// every successful mutation, so an abandoned (never re-saved) draft
	// blueprint eventually expires rather than accumulating forever. Reads,
	// including a run that loads a blueprint by id, do not refresh the TTL -
	// callers that want a blueprint to outlive the
	// TTL indefinitely should re-PUT it periodically or persist a copy
	// downstream; this store is a draft workspace, not permanent archival
	// storage (Open Question decision, recorded in DESIGN.md).
	TTL time.Duration
}

// DefaultConfig returns spec.md §6's documented default TTL (24h).
func DefaultConfig() Config {
	return Config{TTL: 24 * time.Hour}
}

// Store is the C9 blueprint store.
type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewStore wires a Store onto an existing Redis client (tests use
// miniredis; production wires it against the same pool-configured client
// internal/cache.RedisCache hands out).
func NewStore(client *redis.Client, cfg Config) *Store {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{client: client, prefix: "blueprint:", ttl: ttl}
}

func (s *Store) key(id string) string { return s.prefix + id }

func (s *Store) load(ctx context.Context, id string) (*node.Blueprint, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err == redis.Nil {
		return nil, apperrors.New(apperrors.KindNotFound, "blueprint.load",
			errBlueprintNotFound{id: id})
	}
	if err != nil {
		return nil, apperrors.New(apperrors.KindUpstream, "blueprint.load", err)
	}
	var bp node.Blueprint
	if err := json.Unmarshal(data, &bp); err != nil {
		return nil, apperrors.New(apperrors.KindInternal, "blueprint.load", err)
	}
	return &bp, nil
}

func (s *Store) save(ctx context.Context, id string, bp *node.Blueprint) error {
	data, err := json.Marshal(bp)
	if err != nil {
		return apperrors.New(apperrors.KindInternal, "blueprint.save", err)
	}
	if err := s.client.Set(ctx, s.key(id), data, s.ttl).Err(); err != nil {
		return apperrors.New(apperrors.KindUpstream, "blueprint.save", err)
	}
	return nil
}

type errBlueprintNotFound struct{ id string }

func (e errBlueprintNotFound) Error() string { return "blueprint " + e.id + " not found" }

// checkLock enforces spec.md §4.7's precondition rules against an already
// loaded current lock. presented == "" means the caller sent no
// X-Version-Lock header.
func checkLock(op, currentLock, presented string) error {
	if presented == "" {
		return apperrors.New(apperrors.KindPreconditionRequired, op,
			errMissingLock{})
	}
	if presented != currentLock {
		return apperrors.New(apperrors.KindConflict, op, errLockMismatch{expected: currentLock, got: presented})
	}
	return nil
}

type errMissingLock struct{}

func (errMissingLock) Error() string { return "missing X-Version-Lock header" }

type errLockMismatch struct{ expected, got string }

func (e errLockMismatch) Error() string {
	return "version lock mismatch: expected " + e.expected + ", got " + e.got
}

// Create stores a brand-new blueprint. presentedLock must equal
// node.NewSentinel ("__new__"); any other value (including empty) fails,
// mirroring the teacher's "client must send X-Version-Lock: __new__" rule.
func (s *Store) Create(ctx context.Context, id string, presentedLock string, bp *node.Blueprint) (string, error) {
	if presentedLock == "" {
		return "", apperrors.New(apperrors.KindPreconditionRequired, "blueprint.create", errMissingLock{})
	}
	if presentedLock != node.NewSentinel {
		return "", apperrors.New(apperrors.KindConflict, "blueprint.create",
			errLockMismatch{expected: node.NewSentinel, got: presentedLock})
	}
	if err := bp.Validate(); err != nil {
		return "", apperrors.New(apperrors.KindValidation, "blueprint.create", err)
	}
	bp.ID = id
	lock, err := node.VersionLock(bp)
	if err != nil {
		return "", apperrors.New(apperrors.KindInternal, "blueprint.create", err)
	}
	if err := s.save(ctx, id, bp); err != nil {
		return "", err
	}
	return lock, nil
}

// Get returns the stored blueprint and its current lock.
func (s *Store) Get(ctx context.Context, id string) (*node.Blueprint, string, error) {
	bp, err := s.load(ctx, id)
	if err != nil {
		return nil, "", err
	}
	lock, err := node.VersionLock(bp)
	if err != nil {
		return nil, "", apperrors.New(apperrors.KindInternal, "blueprint.get", err)
	}
	return bp, lock, nil
}

// Put fully replaces a stored blueprint, requiring presentedLock to match
// the current server-side lock.
func (s *Store) Put(ctx context.Context, id string, presentedLock string, bp *node.Blueprint) (string, error) {
	current, currentLock, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	_ = current
	if err := checkLock("blueprint.put", currentLock, presentedLock); err != nil {
		return "", err
	}
	if err := bp.Validate(); err != nil {
		return "", apperrors.New(apperrors.KindValidation, "blueprint.put", err)
	}
	bp.ID = id
	newLock, err := node.VersionLock(bp)
	if err != nil {
		return "", apperrors.New(apperrors.KindInternal, "blueprint.put", err)
	}
	if err := s.save(ctx, id, bp); err != nil {
		return "", err
	}
	return newLock, nil
}

// Delete removes a stored blueprint, requiring presentedLock to match.
func (s *Store) Delete(ctx context.Context, id string, presentedLock string) error {
	_, currentLock, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := checkLock("blueprint.delete", currentLock, presentedLock); err != nil {
		return err
	}
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return apperrors.New(apperrors.KindUpstream, "blueprint.delete", err)
	}
	return nil
}

// NodePatch is one entry of a Patch call's node list: either an add/update
// (Node non-nil) or a removal (Remove true), mirroring
// blueprints.py's "{id, type: '__delete__'}" sentinel.
type NodePatch struct {
	ID     string
	Remove bool
	Node   *node.Config
}

// Patch applies add/update/remove node changes and re-validates the whole
// blueprint, per spec.md §4.7: "node changes are applied as add/update/
// remove... the full blueprint is re-validated."
func (s *Store) Patch(ctx context.Context, id string, presentedLock string, patches []NodePatch) (*node.Blueprint, string, error) {
	bp, currentLock, err := s.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if err := checkLock("blueprint.patch", currentLock, presentedLock); err != nil {
		return nil, "", err
	}

	merged := mergeNodes(bp.Nodes, patches)
	bp.Nodes = merged

	if err := bp.Validate(); err != nil {
		return nil, "", apperrors.New(apperrors.KindValidation, "blueprint.patch", err)
	}

	newLock, err := node.VersionLock(bp)
	if err != nil {
		return nil, "", apperrors.New(apperrors.KindInternal, "blueprint.patch", err)
	}
	if err := s.save(ctx, id, bp); err != nil {
		return nil, "", err
	}
	return bp, newLock, nil
}

// mergeNodes applies patches to existing by node id, preserving existing
// node order and appending genuinely new ids at the end, mirroring
// blueprints.py's _merge_nodes (there a dict keeps insertion order; here
// an explicit index map does the same).
func mergeNodes(existing []*node.Config, patches []NodePatch) []*node.Config {
	order := make([]string, 0, len(existing))
	byID := make(map[string]*node.Config, len(existing))
	for _, n := range existing {
		order = append(order, n.ID)
		byID[n.ID] = n
	}
	for _, p := range patches {
		if p.Remove {
			delete(byID, p.ID)
			continue
		}
		if _, exists := byID[p.ID]; !exists {
			order = append(order, p.ID)
		}
		byID[p.ID] = p.Node
	}
	result := make([]*node.Config, 0, len(order))
	for _, id := range order {
		if n, ok := byID[id]; ok {
			result = append(result, n)
		}
	}
	return result
}
