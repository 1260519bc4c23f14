// Package repomanager abstracts the creation of repositories so services can
// bind them to either a live connection or an open transaction.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/avolkovs/vaultshare/internal/dbx"
	"github.com/avolkovs/vaultshare/internal/server/repositories/audit"
	"github.com/avolkovs/vaultshare/internal/server/repositories/notifications"
	"github.com/avolkovs/vaultshare/internal/server/repositories/preferences"
	"github.com/avolkovs/vaultshare/internal/server/repositories/shares"
)

// RepositoryManager vends repository implementations bound to the given
// DBTX (either *sql.DB or *sql.Tx), plus a schema migration hook.
type RepositoryManager interface {
	Shares(db dbx.DBTX) shares.Repository
	Audit(db dbx.DBTX) audit.Repository
	Notifications(db dbx.DBTX) notifications.Repository
	Preferences(db dbx.DBTX) preferences.Repository
	RunMigrations(ctx context.Context, db *sql.DB) error
}
