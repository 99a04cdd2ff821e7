package accounts

// Session is the per request authentication context. It is built by
// Authenticate and torn down by Logout.
type Session struct {
	User         *Account `json:"user,omitempty"`
	AccessToken  string   `json:"-"`
	RefreshToken string   `json:"-"`
	// Refreshed is true when the tokens were rotated from a refresh token
	Refreshed bool `json:"refreshed,omitempty"`
}

// UserID returns the account id or an empty string
func (s *Session) UserID() string {
	if s == nil || s.User == nil {
		return ""
	}
	return s.User.ID.String()
}

// IsAuthenticated reports whether the session carries an account
func (s *Session) IsAuthenticated() bool {
	return s != nil && s.User != nil
}

// Clear drops the account and both tokens
func (s *Session) Clear() {
	if s == nil {
		return
	}
	s.User = nil
	s.AccessToken = ""
	s.RefreshToken = ""
	s.Refreshed = false
}
