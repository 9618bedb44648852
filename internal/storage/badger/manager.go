package badger

import (
	"github.com/ternarybob/arbor"

	"github.com/bidscout/bidscout/internal/common"
	"github.com/bidscout/bidscout/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db        *BadgerDB
	cases     interfaces.CaseStorage
	embedding interfaces.EmbeddingStorage
	manifest  interfaces.ManifestStorage
	jobLog    interfaces.JobLogStorage
	kv        interfaces.KeyValueStorage
	logger    arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:        db,
		cases:     NewCaseStorage(db, logger),
		embedding: NewEmbeddingStorage(db, logger),
		manifest:  NewManifestStorage(db, logger),
		jobLog:    NewJobLogStorage(db, logger),
		kv:        NewKVStorage(db, logger),
		logger:    logger,
	}

	logger.Info().Msg("Badger storage manager initialized")

	return manager, nil
}

// CaseStorage returns the case storage interface
func (m *Manager) CaseStorage() interfaces.CaseStorage {
	return m.cases
}

// EmbeddingStorage returns the embedding storage interface
func (m *Manager) EmbeddingStorage() interfaces.EmbeddingStorage {
	return m.embedding
}

// ManifestStorage returns the document manifest storage interface
func (m *Manager) ManifestStorage() interfaces.ManifestStorage {
	return m.manifest
}

// JobLogStorage returns the job log storage interface
func (m *Manager) JobLogStorage() interfaces.JobLogStorage {
	return m.jobLog
}

// KVStorage returns the key/value storage interface
func (m *Manager) KVStorage() interfaces.KeyValueStorage {
	return m.kv
}

// Close reclaims value log space and closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		m.db.RunGC()
		return m.db.Close()
	}
	return nil
}
