package gql

import (
	"context"
	"net/http"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-accounts"
	goerrors "github.com/goliatone/go-errors"
	"github.com/graph-gophers/graphql-go"
)

// MissingFieldsMessage is returned when register lacks name, email or password
const MissingFieldsMessage = "Please fill all the fields."

// AccountService is the lifecycle the resolvers expose
type AccountService interface {
	Register(ctx context.Context, input accounts.RegisterInput) (*accounts.RegisterResult, error)
	Activate(ctx context.Context, input accounts.ActivateInput) (*accounts.Account, error)
	Login(ctx context.Context, email, password string) (*accounts.LoginResult, error)
	Logout(ctx context.Context, session *accounts.Session) accounts.LogoutResult
	WhoAmI(ctx context.Context, session *accounts.Session) accounts.WhoAmIResult
	ListAccounts(ctx context.Context) ([]*accounts.Account, error)
}

// Resolver is the root resolver
type Resolver struct {
	service     AccountService
	phoneRegion string
	logger      accounts.Logger
}

func NewResolver(service AccountService, phoneRegion string, logger accounts.Logger) *Resolver {
	if phoneRegion == "" {
		phoneRegion = accounts.DefaultPhoneRegion
	}
	return &Resolver{
		service:     service,
		phoneRegion: phoneRegion,
		logger:      logger,
	}
}

type registerDto struct {
	Name        *string
	Email       *string
	Password    *string
	PhoneNumber *string
}

type activationDto struct {
	ActivationToken string
	ActivationCode  string
}

func value(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func (r *Resolver) Register(ctx context.Context, args struct{ RegisterDto registerDto }) (*registerResponseResolver, error) {
	dto := args.RegisterDto
	if value(dto.Name) == "" || value(dto.Email) == "" || dto.Password == nil || *dto.Password == "" {
		return nil, r.fail(accounts.NewValidationMessage(MissingFieldsMessage))
	}

	input := accounts.RegisterInput{
		Name:        *dto.Name,
		Email:       value(dto.Email),
		Password:    *dto.Password,
		PhoneNumber: value(dto.PhoneNumber),
	}

	err := validation.ValidateStruct(&input,
		validation.Field(&input.Email, is.Email),
		validation.Field(&input.PhoneNumber, validation.Required, accounts.PhoneNumberRule(r.phoneRegion)),
	)
	if err != nil {
		return nil, r.fail(accounts.NewValidationError(err))
	}
	input.PhoneNumber = accounts.FormatPhoneE164(input.PhoneNumber, r.phoneRegion)

	res, err := r.service.Register(ctx, input)
	if err != nil {
		return nil, r.fail(err)
	}
	return &registerResponseResolver{res: res}, nil
}

func (r *Resolver) ActivateUser(ctx context.Context, args struct{ ActivationDto activationDto }) (*activationResponseResolver, error) {
	account, err := r.service.Activate(ctx, accounts.ActivateInput{
		ActivationToken: args.ActivationDto.ActivationToken,
		ActivationCode:  args.ActivationDto.ActivationCode,
	})
	if err != nil {
		return nil, r.fail(err)
	}
	return &activationResponseResolver{account: account}, nil
}

func (r *Resolver) Login(ctx context.Context, args struct {
	Email    string
	Password string
}) (*loginResponseResolver, error) {
	res, err := r.service.Login(ctx, args.Email, args.Password)
	if err != nil {
		return nil, r.fail(err)
	}
	return &loginResponseResolver{
		user:         res.User,
		accessToken:  res.AccessToken,
		refreshToken: res.RefreshToken,
		err:          res.Error,
	}, nil
}

func (r *Resolver) GetLoggedInUser(ctx context.Context) (*loginResponseResolver, error) {
	session, ok := accounts.SessionFromContext(ctx)
	if !ok || !session.IsAuthenticated() {
		return nil, r.fail(accounts.ErrUnauthenticated)
	}

	who := r.service.WhoAmI(ctx, session)
	return &loginResponseResolver{
		user:         who.User,
		accessToken:  &who.AccessToken,
		refreshToken: &who.RefreshToken,
	}, nil
}

func (r *Resolver) LogOut(ctx context.Context) (*logoutResponseResolver, error) {
	session, ok := accounts.SessionFromContext(ctx)
	if !ok || !session.IsAuthenticated() {
		return nil, r.fail(accounts.ErrUnauthenticated)
	}

	res := r.service.Logout(ctx, session)
	return &logoutResponseResolver{message: res.Message}, nil
}

func (r *Resolver) GetUsers(ctx context.Context) ([]*userResolver, error) {
	list, err := r.service.ListAccounts(ctx)
	if err != nil {
		return nil, r.fail(err)
	}

	out := make([]*userResolver, 0, len(list))
	for _, account := range list {
		out = append(out, &userResolver{account: account})
	}
	return out, nil
}

type registerResponseResolver struct {
	res *accounts.RegisterResult
}

func (r *registerResponseResolver) ActivationToken() string {
	return r.res.ActivationToken
}

type activationResponseResolver struct {
	account *accounts.Account
}

func (r *activationResponseResolver) User() *userResolver {
	return newUserResolver(r.account)
}

type loginResponseResolver struct {
	user         *accounts.Account
	accessToken  *string
	refreshToken *string
	err          *accounts.LoginError
}

func (r *loginResponseResolver) User() *userResolver {
	return newUserResolver(r.user)
}

func (r *loginResponseResolver) AccessToken() *string {
	return r.accessToken
}

func (r *loginResponseResolver) RefreshToken() *string {
	return r.refreshToken
}

func (r *loginResponseResolver) Error() *errorTypeResolver {
	if r.err == nil {
		return nil
	}
	return &errorTypeResolver{message: r.err.Message}
}

type errorTypeResolver struct {
	message string
	code    *string
}

func (r *errorTypeResolver) Message() string {
	return r.message
}

func (r *errorTypeResolver) Code() *string {
	return r.code
}

type logoutResponseResolver struct {
	message string
}

func (r *logoutResponseResolver) Message() string {
	return r.message
}

type userResolver struct {
	account *accounts.Account
}

func newUserResolver(account *accounts.Account) *userResolver {
	if account == nil {
		return nil
	}
	return &userResolver{account: account}
}

func (u *userResolver) ID() graphql.ID {
	return graphql.ID(u.account.ID.String())
}

func (u *userResolver) Name() string {
	return u.account.Name
}

func (u *userResolver) Email() string {
	return u.account.Email
}

func (u *userResolver) PhoneNumber() string {
	return u.account.PhoneNumber
}

func (u *userResolver) Role() string {
	return u.account.Role
}

func (u *userResolver) CreatedAt() string {
	return u.account.CreatedAt.UTC().Format(time.RFC3339)
}

func (u *userResolver) UpdatedAt() string {
	return u.account.UpdatedAt.UTC().Format(time.RFC3339)
}

// resolverError carries the text and status code in the GraphQL error
// extensions. Internal failures keep a generic message.
type resolverError struct {
	message    string
	code       string
	statusCode int
}

func (e *resolverError) Error() string {
	return e.message
}

func (e *resolverError) Extensions() map[string]any {
	return map[string]any{
		"code":       e.code,
		"statusCode": e.statusCode,
	}
}

func (r *Resolver) fail(err error) error {
	out := &resolverError{
		message:    "internal server error",
		code:       "INTERNAL",
		statusCode: http.StatusInternalServerError,
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr != nil {
		if richErr.Code > 0 {
			out.statusCode = richErr.Code
		}
		if richErr.TextCode != "" {
			out.code = richErr.TextCode
		}
		if out.statusCode < http.StatusInternalServerError || accounts.IsDeliveryError(err) {
			out.message = richErr.Message
		}
	}

	if out.statusCode >= http.StatusInternalServerError && r.logger != nil {
		r.logger.Error("graphql resolver failed", "error", err)
	}

	return out
}
