package httpmcp

import "context"

// OAuthConfig gates the protocol and custom endpoints behind a bearer
// credential check.
//
// The check is presence-only: a request without a bearer token is rejected
// with AuthenticationRequired and an empty token with AuthorizationFailed,
// but no signature, issuer or expiry validation is performed. It must not be
// relied upon as real authentication; deployments needing trust guarantees
// have to terminate auth in front of the gateway.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
}

// ValidateToken checks the request's bearer credential per the presence-only
// policy above.
func (c *OAuthConfig) ValidateToken(ctx context.Context, rc *RequestContext) error {
	token, ok := rc.BearerToken()
	if !ok {
		return NewAuthenticationRequired()
	}
	if token == "" {
		return NewAuthorizationFailed("invalid token")
	}
	return nil
}
