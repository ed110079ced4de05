package entities

import (
	"database/sql"

	"cardkeep/internal/entities/store"
	"cardkeep/internal/entities/store/memory"
	"cardkeep/internal/entities/store/postgres"
)

const (
	createdColumn = "created_date"
	updatedColumn = "updated_date"
)

// Entity is a resolved registry entry.
type Entity struct {
	Kind  Kind
	Model store.Model
}

// ModelFactory builds the storage handle for one kind.
type ModelFactory func(kind Kind) store.Model

// Registry maps every Kind to its model. It is built once and only read
// afterwards, so it needs no locking.
type Registry struct {
	models map[Kind]store.Model
}

// NewRegistry asks factory for one model per kind.
func NewRegistry(factory ModelFactory) *Registry {
	r := &Registry{models: make(map[Kind]store.Model, len(kindNames))}
	for _, k := range Kinds() {
		r.models[k] = factory(k)
	}
	return r
}

// Resolve turns a request name into an entity or ErrUnknownEntity.
func (r *Registry) Resolve(name string) (Entity, error) {
	kind, ok := Lookup(name)
	if !ok {
		return Entity{}, unknownEntity(name)
	}
	return Entity{Kind: kind, Model: r.models[kind]}, nil
}

// Model returns the storage handle for kind.
func (r *Registry) Model(kind Kind) store.Model {
	return r.models[kind]
}

// MemoryModels backs every kind with an in-process table.
func MemoryModels() ModelFactory {
	return func(Kind) store.Model {
		return memory.NewInMemory(memory.WithTimestampColumns(createdColumn, updatedColumn))
	}
}

// PostgresModels backs every kind with its table in db.
func PostgresModels(db *sql.DB) ModelFactory {
	return func(k Kind) store.Model {
		return postgres.NewTable(db, k.Table(), postgres.WithUpdatedColumn(updatedColumn))
	}
}
