package accounts_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/goliatone/go-accounts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type logEntry struct {
	level string
	msg   string
	args  []any
}

// recordingLogger keeps every entry so tests can assert on them
type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) record(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, args: args})
}

func (l *recordingLogger) Debug(msg string, args ...any) { l.record("debug", msg, args) }
func (l *recordingLogger) Info(msg string, args ...any)  { l.record("info", msg, args) }
func (l *recordingLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args) }
func (l *recordingLogger) Error(msg string, args ...any) { l.record("error", msg, args) }

func (l *recordingLogger) Has(level, msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.level == level && strings.Contains(e.msg, msg) {
			return true
		}
	}
	return false
}

// MockAccountRepository implements accounts.AccountRepository
type MockAccountRepository struct {
	mock.Mock
}

func (m *MockAccountRepository) FindByEmail(ctx context.Context, email string) (*accounts.Account, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*accounts.Account), args.Error(1)
}

func (m *MockAccountRepository) FindByPhone(ctx context.Context, phone string) (*accounts.Account, error) {
	args := m.Called(ctx, phone)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*accounts.Account), args.Error(1)
}

func (m *MockAccountRepository) FindByID(ctx context.Context, id string) (*accounts.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*accounts.Account), args.Error(1)
}

func (m *MockAccountRepository) Create(ctx context.Context, account *accounts.Account) (*accounts.Account, error) {
	args := m.Called(ctx, account)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*accounts.Account), args.Error(1)
}

func (m *MockAccountRepository) ListAll(ctx context.Context) ([]*accounts.Account, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*accounts.Account), args.Error(1)
}

type capturingSink struct {
	mu     sync.Mutex
	events []accounts.ActivityEvent
}

func (c *capturingSink) Record(ctx context.Context, evt accounts.ActivityEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

func (c *capturingSink) Types() []accounts.ActivityEventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]accounts.ActivityEventType, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.EventType)
	}
	return out
}

type sentMessage struct {
	to         string
	templateID string
	variables  map[string]any
}

type capturingNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (n *capturingNotifier) Send(ctx context.Context, to, templateID string, variables map[string]any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentMessage{to: to, templateID: templateID, variables: variables})
	return nil
}

func (n *capturingNotifier) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

func (n *capturingNotifier) Last() (sentMessage, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sent) == 0 {
		return sentMessage{}, false
	}
	return n.sent[len(n.sent)-1], true
}

// newTestDB returns a migrated in-memory sqlite database private to the test
func newTestDB(t *testing.T, opts ...accounts.AccountsOption) accounts.RepositoryManager {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := accounts.OpenDB(accounts.DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	manager := accounts.NewRepositoryManager(db, opts...)
	require.NoError(t, manager.Validate())
	require.NoError(t, manager.Migrate(context.Background()))

	return manager
}
