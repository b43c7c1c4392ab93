// Package credential extracts and classifies the caller's credential from request headers.
//
// Exactly one credential must be present: a bearer token in Authorization or an API key in
// X-API-KEY (X-Tenant-API-Key is accepted as an alias). Resolution has no side effects.
package credential

import (
	"net/http"
	"strings"

	dErrors "loyalgate/pkg/domain-errors"
	"loyalgate/pkg/secrets"
)

const (
	HeaderAuthorization = "Authorization"
	HeaderAPIKey        = "X-API-KEY"
	HeaderAPIKeyAlias   = "X-Tenant-API-Key"

	bearerScheme   = "bearer"
	maxTokenLength = 8192
)

// Kind names the credential variant in logs and audit events.
type Kind string

const (
	KindBearer Kind = "bearer"
	KindAPIKey Kind = "api_key"
)

// Credential is a closed set: BearerToken or APIKey.
type Credential interface {
	Kind() Kind
	// Redacted is safe to log.
	Redacted() string
	sealed()
}

// BearerToken is a session token from Authorization: Bearer.
type BearerToken struct {
	Token string
}

func (BearerToken) Kind() Kind { return KindBearer }

func (b BearerToken) Redacted() string { return "bearer:" + secrets.Mask(b.Token) }

func (BearerToken) sealed() {}

// APIKey is a raw tenant API key.
type APIKey struct {
	Key string
}

func (APIKey) Kind() Kind { return KindAPIKey }

func (k APIKey) Redacted() string { return "api_key:" + secrets.Mask(k.Key) }

func (APIKey) sealed() {}

// Resolve classifies the credential in h.
//
//   - both a bearer token and an API key → CodeAmbiguousCredential
//   - two API key headers with different values → CodeAmbiguousCredential
//   - neither → CodeMissingCredential
//   - a present but unusable value → CodeMalformedCredential
func Resolve(h http.Header) (Credential, error) {
	authz, hasAuthz, err := single(h, HeaderAuthorization)
	if err != nil {
		return nil, err
	}
	key, hasKey, err := apiKey(h)
	if err != nil {
		return nil, err
	}

	switch {
	case hasAuthz && hasKey:
		return nil, dErrors.New(dErrors.CodeAmbiguousCredential, "both bearer token and api key supplied")
	case hasAuthz:
		return parseBearer(authz)
	case hasKey:
		return parseAPIKey(key)
	default:
		return nil, dErrors.New(dErrors.CodeMissingCredential, "no credential supplied")
	}
}

// single returns the one value of name. Repeating the header is malformed.
func single(h http.Header, name string) (string, bool, error) {
	values := h.Values(name)
	switch len(values) {
	case 0:
		return "", false, nil
	case 1:
		return values[0], true, nil
	default:
		return "", true, dErrors.New(dErrors.CodeMalformedCredential, name+" header repeated")
	}
}

// apiKey merges X-API-KEY and its alias. Identical values count once.
func apiKey(h http.Header) (string, bool, error) {
	var found string
	present := false
	for _, name := range []string{HeaderAPIKey, HeaderAPIKeyAlias} {
		for _, v := range h.Values(name) {
			v = strings.TrimSpace(v)
			if present && v != found {
				return "", true, dErrors.New(dErrors.CodeAmbiguousCredential, "conflicting api key headers")
			}
			found = v
			present = true
		}
	}
	return found, present, nil
}

func parseBearer(header string) (Credential, error) {
	scheme, tok, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, bearerScheme) {
		return nil, dErrors.New(dErrors.CodeMalformedCredential, "authorization scheme must be Bearer")
	}
	tok = strings.TrimSpace(tok)
	if !wellFormedJWT(tok) {
		return nil, dErrors.New(dErrors.CodeMalformedCredential, "bearer token is not well formed")
	}
	return BearerToken{Token: tok}, nil
}

func parseAPIKey(key string) (Credential, error) {
	if !secrets.WellFormed(key) {
		return nil, dErrors.New(dErrors.CodeMalformedCredential, "api key is not well formed")
	}
	return APIKey{Key: key}, nil
}

// wellFormedJWT checks the compact serialization shape: three non-empty base64url segments.
func wellFormedJWT(tok string) bool {
	if tok == "" || len(tok) > maxTokenLength {
		return false
	}
	segments := strings.Split(tok, ".")
	if len(segments) != 3 {
		return false
	}
	for _, seg := range segments {
		if seg == "" {
			return false
		}
		for i := 0; i < len(seg); i++ {
			c := seg[i]
			switch {
			case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
			default:
				return false
			}
		}
	}
	return true
}
