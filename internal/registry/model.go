package registry

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/stockroomhq/inventory-gateway/internal/storage"
)

// Schema describes how a named model is registered against a tenant
// database: the table it owns and the struct gorm migrates it from.
type Schema struct {
	Table     string
	Prototype any
}

// Model is a compiled schema bound to one tenant's connection. The same
// pointer is returned for every acquisition of the same (tenant, name).
type Model struct {
	Name  string
	Table string

	db *storage.Postgres
}

// Session returns a request-scoped query handle on the model's table.
func (m *Model) Session(ctx context.Context) *gorm.DB {
	return m.db.DB.WithContext(ctx).Table(m.Table)
}

// ConnectFunc establishes the connection for one tenant database.
type ConnectFunc func(ctx context.Context, databaseName string) (*storage.Postgres, error)

// CompileFunc registers a schema against an established connection.
type CompileFunc func(ctx context.Context, db *storage.Postgres, name string, schema Schema) (*Model, error)

// PostgresConnector builds the default ConnectFunc from a printf-style DSN
// template with one %s for the tenant database name.
func PostgresConnector(dsnTemplate string, pool storage.PoolConfig) ConnectFunc {
	return func(ctx context.Context, databaseName string) (*storage.Postgres, error) {
		dsn := fmt.Sprintf(dsnTemplate, databaseName)

		db, err := storage.NewPostgres(dsn, pool)
		if err != nil {
			return nil, err
		}

		if err := db.Ping(ctx); err != nil {
			db.Close()
			return nil, err
		}

		return db, nil
	}
}

func defaultCompile(ctx context.Context, db *storage.Postgres, name string, schema Schema) (*Model, error) {
	if schema.Table == "" {
		return nil, fmt.Errorf("schema for model %q has no table", name)
	}

	if schema.Prototype != nil {
		if err := db.DB.WithContext(ctx).AutoMigrate(schema.Prototype); err != nil {
			return nil, fmt.Errorf("failed to register model %q: %w", name, err)
		}
	}

	return &Model{Name: name, Table: schema.Table, db: db}, nil
}
