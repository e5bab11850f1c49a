// Package common contains shared constants and sentinel errors used across
// TaskKeeper components.
package common

// AuthorizationHeaderName carries "Bearer <access token>" on API requests.
const AuthorizationHeaderName = "Authorization"

// BearerPrefix precedes the access token in the Authorization header.
const BearerPrefix = "Bearer "

// TokenCookieName is the cookie the login endpoint sets with the access token.
const TokenCookieName = "token"
