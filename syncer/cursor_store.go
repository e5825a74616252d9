package syncer

import (
	"context"
	"errors"
	"sync"

	"github.com/jackc/pgx/v5"

	"github.com/BemiHQ/BemiSync/common"
)

const CURSORS_TABLE_NAME = "sync_cursors"

type MemoryCursorStore struct {
	mutex   sync.Mutex
	cursors map[string]common.SyncCursor
}

func NewMemoryCursorStore() *MemoryCursorStore {
	return &MemoryCursorStore{cursors: make(map[string]common.SyncCursor)}
}

func (store *MemoryCursorStore) GetCursor(ctx context.Context, connectionId string, object common.ObjectDescriptor) (common.SyncCursor, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return store.cursors[cursorKey(connectionId, object)], nil
}

func (store *MemoryCursorStore) SetCursor(ctx context.Context, connectionId string, object common.ObjectDescriptor, cursor common.SyncCursor) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	key := cursorKey(connectionId, object)
	store.cursors[key] = store.cursors[key].Advance(cursor.UpdatedAfter())
	return nil
}

func cursorKey(connectionId string, object common.ObjectDescriptor) string {
	return connectionId + "/" + object.String()
}

// -------------------------------------------------------------------------------------------------

// PostgresCursorStore keeps cursors in the catalog database.
// The upsert takes the greatest value, so concurrent or out-of-order writers cannot move a cursor backwards.
type PostgresCursorStore struct {
	Config         *common.CommonConfig
	PostgresClient *common.PostgresClient
}

func NewPostgresCursorStore(config *common.CommonConfig, postgresClient *common.PostgresClient) *PostgresCursorStore {
	return &PostgresCursorStore{Config: config, PostgresClient: postgresClient}
}

func (store *PostgresCursorStore) CreateTableIfNotExists(ctx context.Context) error {
	_, err := store.PostgresClient.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+CURSORS_TABLE_NAME+` (
		connection_id TEXT NOT NULL,
		object TEXT NOT NULL,
		last_modified_at_ms BIGINT,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (connection_id, object)
	)`)
	return err
}

func (store *PostgresCursorStore) GetCursor(ctx context.Context, connectionId string, object common.ObjectDescriptor) (common.SyncCursor, error) {
	var cursor common.SyncCursor
	err := store.PostgresClient.QueryRow(ctx,
		"SELECT last_modified_at_ms FROM "+CURSORS_TABLE_NAME+" WHERE connection_id = $1 AND object = $2",
		connectionId, object.String(),
	).Scan(&cursor.LastModifiedAtMs)
	if errors.Is(err, pgx.ErrNoRows) {
		return common.SyncCursor{}, nil
	}
	return cursor, err
}

func (store *PostgresCursorStore) SetCursor(ctx context.Context, connectionId string, object common.ObjectDescriptor, cursor common.SyncCursor) error {
	if cursor.LastModifiedAtMs == nil {
		return nil
	}

	_, err := store.PostgresClient.Exec(ctx,
		"INSERT INTO "+CURSORS_TABLE_NAME+" (connection_id, object, last_modified_at_ms) VALUES ($1, $2, $3) "+
			"ON CONFLICT (connection_id, object) DO UPDATE SET "+
			"last_modified_at_ms = GREATEST("+CURSORS_TABLE_NAME+".last_modified_at_ms, EXCLUDED.last_modified_at_ms), updated_at = now()",
		connectionId, object.String(), *cursor.LastModifiedAtMs,
	)
	return err
}
