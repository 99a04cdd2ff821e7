package accounts

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Accounts() Accounts
	Migrate(ctx context.Context) error
}

type mngr struct {
	db       *bun.DB
	accounts Accounts
}

func NewRepositoryManager(db *bun.DB, opts ...AccountsOption) RepositoryManager {
	return &mngr{
		db:       db,
		accounts: NewAccountsRepository(db, opts...),
	}
}

func (m mngr) Validate() error {
	if m.db == nil {
		return errors.New("repository database should be initialized")
	}

	if m.accounts == nil {
		return errors.New("repository accounts should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

// Migrate creates the users table when missing
func (m mngr) Migrate(ctx context.Context) error {
	return m.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewCreateTable().
			Model((*Account)(nil)).
			IfNotExists().
			Exec(ctx)
		return err
	})
}

func (m mngr) Accounts() Accounts {
	return m.accounts
}
