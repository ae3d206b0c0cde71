package audit

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"

	id "persona/pkg/domain"
	dErrors "persona/pkg/domain-errors"
)

const genesisHash = "0000000000000000"

type chainTip struct {
	sequence uint64
	hash     string
}

// Trail is the append-only audit service. It owns per-identity sequence
// numbers and the hash chain; the store only persists what Trail hands it.
type Trail struct {
	store  Store
	logger *slog.Logger
	outbox chan<- Entry

	mu   sync.Mutex
	tips map[id.IdentityID]chainTip
}

type Option func(*Trail)

func WithLogger(logger *slog.Logger) Option {
	return func(t *Trail) { t.logger = logger }
}

// WithOutbox attaches a channel drained by a Worker that ships entries to a
// Sink. The channel is never blocked on: when full, shipping is skipped and
// logged, keeping the append path non-blocking.
func WithOutbox(outbox chan<- Entry) Option {
	return func(t *Trail) { t.outbox = outbox }
}

func NewTrail(store Store, opts ...Option) *Trail {
	t := &Trail{
		store:  store,
		logger: slog.Default(),
		tips:   make(map[id.IdentityID]chainTip),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Append records one immutable entry for the identity. Timestamp defaults to
// now when the caller did not pin one.
func (t *Trail) Append(ctx context.Context, identityID id.IdentityID, action Action, actor string, metadata map[string]string) (Entry, error) {
	if identityID.IsNil() {
		return Entry{}, dErrors.New(dErrors.CodeInvalidInput, "identity id is required")
	}

	t.mu.Lock()
	tip, ok := t.tips[identityID]
	prevHash := genesisHash
	if ok {
		prevHash = tip.hash
	}
	entry := Entry{
		ID:         id.NewAuditEntryID(),
		IdentityID: identityID,
		Action:     action,
		Level:      action.Level(),
		Timestamp:  time.Now().UTC(),
		Actor:      actor,
		Metadata:   metadata,
		Sequence:   tip.sequence + 1,
		PrevHash:   prevHash,
	}
	entry.Hash = entryHash(entry)
	t.tips[identityID] = chainTip{sequence: entry.Sequence, hash: entry.Hash}
	t.mu.Unlock()

	if err := t.store.Append(ctx, entry); err != nil {
		return Entry{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "append audit entry")
	}

	if t.outbox != nil {
		select {
		case t.outbox <- entry:
		default:
			t.logger.WarnContext(ctx, "audit outbox full, entry not shipped",
				"identity_id", identityID.String(),
				"action", string(action),
			)
		}
	}
	return entry, nil
}

// History returns the identity's entries in insertion order.
func (t *Trail) History(ctx context.Context, identityID id.IdentityID) ([]Entry, error) {
	entries, err := t.store.ListByIdentity(ctx, identityID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "list audit entries")
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Sequence < entries[j].Sequence
	})
	return entries, nil
}

// Verify walks an identity's chain and reports the first broken link, if
// any. Used by operational tooling and tests.
func (t *Trail) Verify(ctx context.Context, identityID id.IdentityID) error {
	entries, err := t.History(ctx, identityID)
	if err != nil {
		return err
	}
	prevHash := genesisHash
	for i, entry := range entries {
		if entry.PrevHash != prevHash {
			return dErrors.Newf(dErrors.CodeInvariantViolation, "audit chain broken at sequence %d", entry.Sequence)
		}
		if entryHash(entry) != entry.Hash {
			return dErrors.Newf(dErrors.CodeInvariantViolation, "audit entry %d hash mismatch", entry.Sequence)
		}
		if uint64(i+1) != entry.Sequence {
			return dErrors.Newf(dErrors.CodeInvariantViolation, "audit sequence gap at %d", entry.Sequence)
		}
		prevHash = entry.Hash
	}
	return nil
}

// entryHash covers the fields that define an entry's identity and ordering.
// Metadata is excluded: map iteration order would make the hash unstable.
func entryHash(entry Entry) string {
	payload := fmt.Sprintf("%d|%s|%s|%s|%s|%s",
		entry.Sequence,
		entry.Timestamp.Format(time.RFC3339Nano),
		entry.IdentityID.String(),
		entry.Action,
		entry.Actor,
		entry.PrevHash,
	)
	sum := blake2b.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:16])
}
