// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package badger

import (
	"context"
	"errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/kbase/core"
	"github.com/poiesic/kbase/storage"
)

// LedgerRepository implements storage.LedgerRepository for BadgerDB.
type LedgerRepository struct {
	backend *Backend
}

var _ storage.LedgerRepository = (*LedgerRepository)(nil)

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(backend *Backend) *LedgerRepository {
	return &LedgerRepository{
		backend: backend,
	}
}

// SaveRecord persists the processing record of a project in a single write.
func (r *LedgerRepository) SaveRecord(ctx context.Context, record *core.ProcessingRecord) error {
	if err := core.ValidateProjectID(record.ProjectID); err != nil {
		return err
	}
	value := storage.MarshalRecord(record)
	return r.backend.update(ctx, func(tx *badger.Txn) error {
		return tx.Set(makeLedgerKey(record.ProjectID), value)
	})
}

// LoadRecord retrieves the processing record of a project.
// Returns nil, nil if no record exists.
func (r *LedgerRepository) LoadRecord(ctx context.Context, project core.ProjectID) (*core.ProcessingRecord, error) {
	var record *core.ProcessingRecord
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeLedgerKey(project))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}

		return item.Value(func(val []byte) error {
			var unmarshalErr error
			record, unmarshalErr = storage.UnmarshalRecord(val)
			return unmarshalErr
		})
	}, false)

	return record, err
}

// DeleteRecord removes the processing record of a project.
func (r *LedgerRepository) DeleteRecord(ctx context.Context, project core.ProjectID) error {
	return r.backend.update(ctx, func(tx *badger.Txn) error {
		return tx.Delete(makeLedgerKey(project))
	})
}
