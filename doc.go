// Package accounts implements a user account lifecycle: registration
// confirmed by an emailed four digit code, activation, login with access and
// refresh tokens, logout, and account listing.
//
// Lifecycle:
//
//	Register  -> pending registration signed into an activation token, code mailed
//	Activate  -> token and code verified, account persisted with role "user"
//	Login     -> password checked, access and refresh tokens issued
//	Authenticate -> session resolved from the access token, or rotated from the refresh token
//	Logout    -> session cleared
//
// Pending registrations are never stored; the activation token carries them
// until it expires. Email and phone number uniqueness is checked at register
// time and enforced again by the store at activation.
//
// Transports live in subpackages: rest mounts the /users routes on fiber, gql
// serves the GraphQL schema, and middleware/jwtware resolves sessions from
// request headers and cookies.
package accounts
