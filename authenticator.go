package accounts

import "context"

// Authenticate resolves a session from an access token, falling back to a
// refresh token. A refresh rotates both tokens.
func (s *AccountService) Authenticate(ctx context.Context, accessToken, refreshToken string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if accessToken != "" {
		if claims, err := s.tokens.VerifyAccess(accessToken); err == nil {
			account, err := s.loadAccount(ctx, claims.UserID())
			if err != nil {
				return nil, err
			}
			return &Session{
				User:         account,
				AccessToken:  accessToken,
				RefreshToken: refreshToken,
			}, nil
		}
	}

	if refreshToken == "" {
		return nil, ErrUnauthenticated
	}

	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, ErrUnauthenticated
	}

	account, err := s.loadAccount(ctx, claims.UserID())
	if err != nil {
		return nil, err
	}

	newAccess, newRefresh, err := s.issuePair(account.ID.String())
	if err != nil {
		return nil, err
	}

	s.emit(ctx, ActivityEventSessionRefreshed, account.ID.String(), account.Email, nil)

	return &Session{
		User:         account,
		AccessToken:  newAccess,
		RefreshToken: newRefresh,
		Refreshed:    true,
	}, nil
}

func (s *AccountService) loadAccount(ctx context.Context, id string) (*Account, error) {
	account, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if IsNotFound(err) {
			s.logger.Debug("token subject no longer exists", "id", id)
			return nil, ErrUnauthenticated
		}
		return nil, err
	}
	return account, nil
}
