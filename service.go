package accounts

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"math/big"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

const (
	// ActivationTemplateID is the template sent on registration
	ActivationTemplateID = "activation-mail"
	// ActivationSubject is the subject line of the activation message
	ActivationSubject = "Activate your Foodzap account!"
	// LogoutMessage is returned by Logout
	LogoutMessage = "Logged out successfully!"
)

// CodeGenerator returns a fresh activation code
type CodeGenerator func() (string, error)

// RegisterInput is the data needed to start a registration
type RegisterInput struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	PhoneNumber string `json:"phone_number"`
}

// Validate checks that every field is present and the email is well formed
func (r RegisterInput) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required),
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
		validation.Field(&r.PhoneNumber, validation.Required),
	)
}

// RegisterResult carries the activation token. The code only travels
// through the notifier.
type RegisterResult struct {
	ActivationToken string `json:"activation_token"`
}

// ActivateInput is the data needed to finish a registration
type ActivateInput struct {
	ActivationToken string `json:"activationToken"`
	ActivationCode  string `json:"activationCode"`
}

func (a ActivateInput) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.ActivationToken, validation.Required),
		validation.Field(&a.ActivationCode, validation.Required),
	)
}

// LoginError is the soft failure returned as data by Login
type LoginError struct {
	Message string `json:"message"`
}

// LoginResult is the outcome of Login. On bad credentials every field but
// Error is nil.
type LoginResult struct {
	User         *Account    `json:"user"`
	AccessToken  *string     `json:"accessToken"`
	RefreshToken *string     `json:"refreshToken"`
	Error        *LoginError `json:"error"`
}

// LogoutResult is returned by Logout
type LogoutResult struct {
	Message string `json:"message"`
}

// WhoAmIResult is a projection of the session
type WhoAmIResult struct {
	User         *Account `json:"user"`
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken"`
}

// AccountService drives the account lifecycle: register, activate, login,
// logout and session resolution.
type AccountService struct {
	repo     AccountRepository
	tokens   TokenIssuer
	notifier Notifier
	hasher   PasswordHasher
	codes    CodeGenerator
	logger   Logger
	activity ActivitySink
	now      func() time.Time
}

// ServiceOption configures an AccountService
type ServiceOption func(*AccountService)

// WithHasher sets the password hasher
func WithHasher(hasher PasswordHasher) ServiceOption {
	return func(s *AccountService) {
		if hasher != nil {
			s.hasher = hasher
		}
	}
}

// WithCodeGenerator replaces the activation code generator
func WithCodeGenerator(gen CodeGenerator) ServiceOption {
	return func(s *AccountService) {
		if gen != nil {
			s.codes = gen
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger Logger) ServiceOption {
	return func(s *AccountService) {
		s.logger = normalizeLogger(logger)
	}
}

// WithActivitySink configures an ActivitySink for lifecycle events.
func WithActivitySink(sink ActivitySink) ServiceOption {
	return func(s *AccountService) {
		s.activity = normalizeActivitySink(sink)
	}
}

// WithServiceClock sets the clock used to stamp activity events
func WithServiceClock(clock func() time.Time) ServiceOption {
	return func(s *AccountService) {
		if clock != nil {
			s.now = clock
		}
	}
}

func NewAccountService(repo AccountRepository, tokens TokenIssuer, notifier Notifier, opts ...ServiceOption) *AccountService {
	s := &AccountService{
		repo:     repo,
		tokens:   tokens,
		notifier: notifier,
		hasher:   NewBcryptHasher(DefaultHashCost),
		codes:    GenerateActivationCode,
		logger:   defLogger{},
		activity: noopActivitySink{},
		now:      time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

// Register checks that email and phone are free, hashes the password and
// mails an activation code. The returned token carries the pending account.
func (s *AccountService) Register(ctx context.Context, input RegisterInput) (*RegisterResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	input.Email = strings.TrimSpace(input.Email)
	input.PhoneNumber = strings.TrimSpace(input.PhoneNumber)

	if err := input.Validate(); err != nil {
		return nil, NewValidationError(err)
	}

	if err := s.ensureAvailable(ctx, input.Name, input.Email, input.PhoneNumber, s.repo.FindByEmail, s.repo.FindByPhone); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	code, err := s.codes()
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate activation code")
	}

	pending := PendingRegistration{
		Name:        input.Name,
		Email:       input.Email,
		Password:    hash,
		PhoneNumber: input.PhoneNumber,
	}

	token, err := s.tokens.IssueActivation(pending, code)
	if err != nil {
		return nil, err
	}

	err = s.notifier.Send(ctx, input.Email, ActivationTemplateID, map[string]any{
		"name":           input.Name,
		"activationCode": code,
	})
	if err != nil {
		s.logger.Error("activation delivery failed", "email", input.Email, "error", err)
		if IsDeliveryError(err) {
			return nil, err
		}
		return nil, NewDeliveryError(err, input.Email)
	}

	s.emit(ctx, ActivityEventRegistrationRequested, "", input.Email, nil)

	return &RegisterResult{ActivationToken: token}, nil
}

// Activate verifies the activation token and code and creates the account.
// Replaying a token after success ends in a conflict.
func (s *AccountService) Activate(ctx context.Context, input ActivateInput) (*Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := input.Validate(); err != nil {
		return nil, NewValidationError(err)
	}

	claims, err := s.tokens.VerifyActivation(input.ActivationToken)
	if err != nil {
		return nil, err
	}

	if !codesMatch(claims.ActivationCode, input.ActivationCode) {
		return nil, ErrInvalidActivationCode
	}

	account, err := s.createActivated(ctx, claims.User)
	if err != nil {
		return nil, err
	}

	s.emit(ctx, ActivityEventAccountActivated, account.ID.String(), account.Email, nil)

	return account, nil
}

// Login checks credentials and issues an access and refresh token pair. Bad
// credentials are reported in the result, not as an error.
func (s *AccountService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	email = strings.TrimSpace(email)

	account, err := s.repo.FindByEmail(ctx, email)
	if err != nil && !IsNotFound(err) {
		return nil, err
	}

	if account == nil || !s.hasher.Verify(password, account.PasswordHash) {
		s.logger.Debug("login rejected", "email", email)
		s.emit(ctx, ActivityEventLoginFailure, "", email, nil)
		return &LoginResult{Error: &LoginError{Message: LoginErrorMessage}}, nil
	}

	accessToken, refreshToken, err := s.issuePair(account.ID.String())
	if err != nil {
		return nil, err
	}

	s.emit(ctx, ActivityEventLoginSuccess, account.ID.String(), account.Email, nil)

	return &LoginResult{
		User:         account,
		AccessToken:  &accessToken,
		RefreshToken: &refreshToken,
	}, nil
}

// Logout clears the session. A nil or empty session is a no-op.
func (s *AccountService) Logout(ctx context.Context, session *Session) LogoutResult {
	if session.IsAuthenticated() {
		s.emit(ctx, ActivityEventLogout, session.UserID(), session.User.Email, nil)
	}
	session.Clear()
	return LogoutResult{Message: LogoutMessage}
}

// WhoAmI projects the session as is
func (s *AccountService) WhoAmI(_ context.Context, session *Session) WhoAmIResult {
	if session == nil {
		return WhoAmIResult{}
	}
	return WhoAmIResult{
		User:         session.User,
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
	}
}

// ListAccounts returns every account
func (s *AccountService) ListAccounts(ctx context.Context) ([]*Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.repo.ListAll(ctx)
}

// createActivated re-checks availability and inserts the account. Stores
// that support transactions run both steps in one.
func (s *AccountService) createActivated(ctx context.Context, pending PendingRegistration) (*Account, error) {
	store, ok := s.repo.(Accounts)
	if !ok {
		if err := s.ensureAvailable(ctx, pending.Name, pending.Email, pending.PhoneNumber, s.repo.FindByEmail, s.repo.FindByPhone); err != nil {
			return nil, err
		}
		return s.repo.Create(ctx, pending.ToAccount())
	}

	var account *Account
	err := store.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		byEmail := func(ctx context.Context, email string) (*Account, error) {
			return store.FindByEmailTx(ctx, tx, email)
		}
		byPhone := func(ctx context.Context, phone string) (*Account, error) {
			return store.FindByPhoneTx(ctx, tx, phone)
		}

		if err := s.ensureAvailable(ctx, pending.Name, pending.Email, pending.PhoneNumber, byEmail, byPhone); err != nil {
			return err
		}

		created, err := store.CreateTx(ctx, tx, pending.ToAccount())
		if err != nil {
			return err
		}
		account = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	return account, nil
}

type accountLookup func(ctx context.Context, value string) (*Account, error)

func (s *AccountService) ensureAvailable(ctx context.Context, name, email, phone string, byEmail, byPhone accountLookup) error {
	existing, err := byEmail(ctx, email)
	if err != nil && !IsNotFound(err) {
		return err
	}
	if existing != nil {
		return NewConflictError(accountExistsMessage(name, email))
	}

	existing, err = byPhone(ctx, phone)
	if err != nil && !IsNotFound(err) {
		return err
	}
	if existing != nil {
		return NewConflictError(accountExistsMessage(name, phone))
	}

	return nil
}

func (s *AccountService) issuePair(accountID string) (string, string, error) {
	accessToken, err := s.tokens.IssueAccess(accountID)
	if err != nil {
		return "", "", err
	}

	refreshToken, err := s.tokens.IssueRefresh(accountID)
	if err != nil {
		return "", "", err
	}

	return accessToken, refreshToken, nil
}

func (s *AccountService) emit(ctx context.Context, eventType ActivityEventType, userID, email string, metadata map[string]any) {
	event := ActivityEvent{
		EventType:  eventType,
		UserID:     userID,
		Email:      email,
		Metadata:   metadata,
		OccurredAt: s.now().UTC(),
	}
	if err := s.activity.Record(ctx, event); err != nil {
		s.logger.Warn("activity sink error", "event", eventType, "error", err)
	}
}

// GenerateActivationCode returns a four digit code drawn uniformly from
// 1000 to 9999.
func GenerateActivationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(9000))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n.Int64()+1000, 10), nil
}

func codesMatch(expected, given string) bool {
	given = strings.TrimSpace(given)
	if expected == "" || given == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(given)) == 1
}
