package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/taskkeeper/internal/dbx"
	"github.com/dmitrijs2005/taskkeeper/internal/server/repositories/comments"
	"github.com/dmitrijs2005/taskkeeper/internal/server/repositories/files"
	"github.com/dmitrijs2005/taskkeeper/internal/server/repositories/memory"
	"github.com/dmitrijs2005/taskkeeper/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/taskkeeper/internal/server/repositories/tasks"
	"github.com/dmitrijs2005/taskkeeper/internal/server/repositories/users"
)

// InMemoryRepositoryManager serves every repository from one memory.Store.
// The DBTX arguments are ignored; pair it with dbx.NoTx.
type InMemoryRepositoryManager struct {
	store *memory.Store
}

func NewInMemoryRepositoryManager() *InMemoryRepositoryManager {
	return &InMemoryRepositoryManager{store: memory.NewStore()}
}

func (m *InMemoryRepositoryManager) RunMigrations(context.Context, *sql.DB) error { return nil }

func (m *InMemoryRepositoryManager) Users(dbx.DBTX) users.Repository { return m.store.Users() }

func (m *InMemoryRepositoryManager) RefreshTokens(dbx.DBTX) refreshtokens.Repository {
	return m.store.RefreshTokens()
}

func (m *InMemoryRepositoryManager) Tasks(dbx.DBTX) tasks.Repository { return m.store.Tasks() }

func (m *InMemoryRepositoryManager) Files(dbx.DBTX) files.Repository { return m.store.Files() }

func (m *InMemoryRepositoryManager) Comments(dbx.DBTX) comments.Repository {
	return m.store.Comments()
}
