// Package domain binds the metadata registry, the lifecycle dispatcher and a
// persistence engine into one entity service.
package domain

import (
	"context"

	"advisorcrm/internal/core/entity"
	"advisorcrm/internal/core/id"
	"advisorcrm/internal/metadata"
)

// DefaultQueryLimit caps reads that do not set a limit.
const DefaultQueryLimit = 50

// Repository is the persistence engine contract. Implementations shape their
// statements from class metadata and never run hooks themselves.
type Repository interface {
	// Insert writes new instances. Root relationships are written first so
	// foreign keys exist before the owning rows.
	Insert(ctx context.Context, instances []*entity.Instance) error

	// Update writes the dirty persisted properties of stored instances.
	Update(ctx context.Context, instances []*entity.Instance) error

	// Delete removes stored instances by id.
	Delete(ctx context.Context, instances []*entity.Instance) error

	// Load fetches one instance and reports the properties it fetched.
	// A missing row is a NotFound error.
	Load(ctx context.Context, class string, id id.ID, include ...metadata.Include) (*entity.Instance, []string, error)

	// Query fetches instances matching filter and reports the properties fetched.
	Query(ctx context.Context, filter *metadata.Filter) ([]*entity.Instance, []string, error)
}

// FieldCipher encrypts single field values. Encrypt must be deterministic for
// a given field so equal plaintexts can be searched.
type FieldCipher interface {
	Encrypt(field string, plaintext []byte) (string, error)
	Decrypt(field string, ciphertext string) ([]byte, error)
}
