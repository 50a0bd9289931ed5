package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/seftconsumer/internal/consumer/repositories/scanreports"
	"github.com/dmitrijs2005/seftconsumer/internal/dbx"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	ScanReports(db dbx.DBTX) scanreports.Repository
}
