package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"persona/internal/audit"
	id "persona/pkg/domain"
	txcontext "persona/pkg/platform/tx"
)

// schema is applied by EnsureSchema; managed-migration deployments own the
// DDL themselves and skip the call.
const schema = `
CREATE TABLE IF NOT EXISTS audit_entries (
    id          UUID PRIMARY KEY,
    identity_id UUID NOT NULL,
    action      TEXT NOT NULL,
    level       TEXT NOT NULL,
    actor       TEXT NOT NULL DEFAULT '',
    metadata    JSONB,
    sequence    BIGINT NOT NULL,
    prev_hash   TEXT NOT NULL,
    hash        TEXT NOT NULL,
    ts          TIMESTAMPTZ NOT NULL,
    UNIQUE (identity_id, sequence)
);
CREATE INDEX IF NOT EXISTS audit_entries_identity_idx
    ON audit_entries (identity_id, sequence);
`

// Store persists audit entries in PostgreSQL. When the context carries a SQL
// transaction the append rides it, so an audit record and the mutation it
// documents commit together.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the audit table when it does not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure audit schema: %w", err)
	}
	return nil
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *Store) Append(ctx context.Context, entry audit.Entry) error {
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("marshal audit metadata: %w", err)
	}
	const q = `
		INSERT INTO audit_entries (id, identity_id, action, level, actor, metadata, sequence, prev_hash, hash, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = s.execer(ctx).ExecContext(ctx, q,
		entry.ID.String(),
		entry.IdentityID.String(),
		string(entry.Action),
		string(entry.Level),
		entry.Actor,
		metadata,
		entry.Sequence,
		entry.PrevHash,
		entry.Hash,
		entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (s *Store) ListByIdentity(ctx context.Context, identityID id.IdentityID) ([]audit.Entry, error) {
	const q = `
		SELECT id, identity_id, action, level, actor, metadata, sequence, prev_hash, hash, ts
		FROM audit_entries
		WHERE identity_id = $1
		ORDER BY sequence ASC
	`
	rows, err := s.db.QueryContext(ctx, q, identityID.String())
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []audit.Entry
	for rows.Next() {
		var (
			entry       audit.Entry
			entryID     string
			identity    string
			action      string
			level       string
			rawMetadata []byte
		)
		if err := rows.Scan(&entryID, &identity, &action, &level, &entry.Actor, &rawMetadata,
			&entry.Sequence, &entry.PrevHash, &entry.Hash, &entry.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if len(rawMetadata) > 0 {
			if err := json.Unmarshal(rawMetadata, &entry.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal audit metadata: %w", err)
			}
		}
		parsedEntryID, err := parseEntryID(entryID)
		if err != nil {
			return nil, err
		}
		parsedIdentityID, err := id.ParseIdentityID(identity)
		if err != nil {
			return nil, err
		}
		entry.ID = parsedEntryID
		entry.IdentityID = parsedIdentityID
		entry.Action = audit.Action(action)
		entry.Level = audit.SecurityLevel(level)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func parseEntryID(s string) (id.AuditEntryID, error) {
	parsed, err := id.ParseIdentityID(s)
	if err != nil {
		return id.AuditEntryID{}, fmt.Errorf("parse audit entry id: %w", err)
	}
	return id.AuditEntryID(parsed), nil
}
