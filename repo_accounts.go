package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"
)

// IDStrategy selects how new account ids are generated
type IDStrategy string

const (
	// IDStrategyUUID assigns a random UUID
	IDStrategyUUID IDStrategy = "uuid"
	// IDStrategyHashid derives a stable UUID from the email
	IDStrategyHashid IDStrategy = "hashid"
)

// Accounts is the bun backed AccountRepository. The Tx variants run on the
// transaction handed out by RunInTx.
type Accounts interface {
	AccountRepository
	RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error
	CreateTx(ctx context.Context, tx bun.IDB, account *Account) (*Account, error)
	FindByEmailTx(ctx context.Context, tx bun.IDB, email string) (*Account, error)
	FindByPhoneTx(ctx context.Context, tx bun.IDB, phone string) (*Account, error)
}

type accountsRepo struct {
	repository.Repository[*Account]
	db         *bun.DB
	idStrategy IDStrategy
	now        func() time.Time
}

var (
	_ Accounts                        = (*accountsRepo)(nil)
	_ repository.Repository[*Account] = (*accountsRepo)(nil)
)

// AccountsOption configures the accounts repository
type AccountsOption func(*accountsRepo)

// WithIDStrategy sets the id generation strategy
func WithIDStrategy(strategy IDStrategy) AccountsOption {
	return func(r *accountsRepo) {
		if strategy != "" {
			r.idStrategy = strategy
		}
	}
}

// WithAccountsClock sets the clock used for timestamps
func WithAccountsClock(clock func() time.Time) AccountsOption {
	return func(r *accountsRepo) {
		if clock != nil {
			r.now = clock
		}
	}
}

func NewAccountsRepository(db *bun.DB, opts ...AccountsOption) Accounts {
	repo := repository.NewRepository[*Account](db, repository.ModelHandlers[*Account]{
		NewRecord: func() *Account { return &Account{} },
		GetID: func(a *Account) uuid.UUID {
			if a == nil {
				return uuid.Nil
			}
			return a.ID
		},
		SetID: func(a *Account, id uuid.UUID) {
			if a != nil {
				a.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	r := &accountsRepo{
		Repository: repo,
		db:         db,
		idStrategy: IDStrategyUUID,
		now:        time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	return r
}

func (r *accountsRepo) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.db.RunInTx(ctx, opts, f)
}

func (r *accountsRepo) FindByEmail(ctx context.Context, email string) (*Account, error) {
	return r.FindByEmailTx(ctx, r.db, email)
}

func (r *accountsRepo) FindByEmailTx(ctx context.Context, tx bun.IDB, email string) (*Account, error) {
	return r.findBy(ctx, tx, "email", email)
}

func (r *accountsRepo) FindByPhone(ctx context.Context, phone string) (*Account, error) {
	return r.FindByPhoneTx(ctx, r.db, phone)
}

func (r *accountsRepo) FindByPhoneTx(ctx context.Context, tx bun.IDB, phone string) (*Account, error) {
	return r.findBy(ctx, tx, "phone_number", phone)
}

func (r *accountsRepo) FindByID(ctx context.Context, id string) (*Account, error) {
	if _, err := uuid.Parse(strings.TrimSpace(id)); err != nil {
		return nil, ErrAccountNotFound
	}

	record, err := r.Repository.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		if IsNotFound(err) {
			return nil, ErrAccountNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to find account by id")
	}
	return record, nil
}

func (r *accountsRepo) Create(ctx context.Context, account *Account) (*Account, error) {
	return r.CreateTx(ctx, r.db, account)
}

// CreateTx inserts the account. A unique constraint violation on email or
// phone number is reported as a conflict.
func (r *accountsRepo) CreateTx(ctx context.Context, tx bun.IDB, account *Account) (*Account, error) {
	if account == nil {
		return nil, goerrors.New("account must not be nil", goerrors.CategoryBadInput)
	}

	r.prepareDefaults(account)

	if _, err := tx.NewInsert().Model(account).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return nil, NewConflictError(fmt.Sprintf("User %s email or phone number already exists", account.Name))
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create account")
	}

	return account, nil
}

func (r *accountsRepo) ListAll(ctx context.Context) ([]*Account, error) {
	records := []*Account{}
	err := r.db.NewSelect().
		Model(&records).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to list accounts")
	}
	return records, nil
}

func (r *accountsRepo) findBy(ctx context.Context, tx bun.IDB, column, value string) (*Account, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, ErrAccountNotFound
	}

	record := &Account{}
	err := tx.NewSelect().
		Model(record).
		Where(fmt.Sprintf("?TableAlias.%s = ?", column), value).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if IsNotFound(err) {
			return nil, ErrAccountNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to find account").
			WithMetadata(map[string]any{
				"column": column,
			})
	}

	return record, nil
}

func (r *accountsRepo) prepareDefaults(account *Account) {
	if account.Role == "" {
		account.Role = RoleUser
	}

	if account.ID == uuid.Nil {
		account.ID = r.newID(account.Email)
	}

	now := r.now().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now
}

func (r *accountsRepo) newID(email string) uuid.UUID {
	if r.idStrategy == IDStrategyHashid && email != "" {
		if id, err := hashid.NewUUID(strings.ToLower(email)); err == nil {
			return id
		}
	}
	return uuid.New()
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key")
}
