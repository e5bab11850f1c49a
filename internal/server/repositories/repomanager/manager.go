package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/taskkeeper/internal/dbx"
	"github.com/dmitrijs2005/taskkeeper/internal/server/repositories/comments"
	"github.com/dmitrijs2005/taskkeeper/internal/server/repositories/files"
	"github.com/dmitrijs2005/taskkeeper/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/taskkeeper/internal/server/repositories/tasks"
	"github.com/dmitrijs2005/taskkeeper/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a DBTX, so services can
// use the same repositories inside and outside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	Tasks(db dbx.DBTX) tasks.Repository
	Files(db dbx.DBTX) files.Repository
	Comments(db dbx.DBTX) comments.Repository
}
