package recovery

import (
	"net/url"
	"strings"
)

// GenericInvalidMessage is shown when a link is rejected without the provider
// supplying its own description.
const GenericInvalidMessage = "This reset link is invalid or expired. Please request a new one."

// Params are the recovery parameters carried by a reset link. They are derived
// from the URL on every load and never persisted. Different delivery paths
// place tokens in different locations: the authorization code arrives in the
// query, the legacy token pair in the fragment, and explicit error payloads
// may appear in either.
type Params struct {
	AccessToken      string
	RefreshToken     string
	Type             string
	Code             string
	Error            string
	ErrorCode        string
	ErrorDescription string
}

// ParseParams extracts recovery parameters from rawURL, reading both the
// fragment and query portions.
func ParseParams(rawURL string) Params {
	var fragment, query string

	if i := strings.Index(rawURL, "#"); i >= 0 {
		fragment = rawURL[i+1:]
		rawURL = rawURL[:i]
	}
	if u, err := url.Parse(rawURL); err == nil {
		query = u.RawQuery
	}

	hashParams, _ := url.ParseQuery(fragment)
	searchParams, _ := url.ParseQuery(query)

	either := func(key string) string {
		if v := hashParams.Get(key); v != "" {
			return v
		}
		return searchParams.Get(key)
	}

	return Params{
		AccessToken:      hashParams.Get("access_token"),
		RefreshToken:     hashParams.Get("refresh_token"),
		Type:             hashParams.Get("type"),
		Code:             searchParams.Get("code"),
		Error:            either("error"),
		ErrorCode:        either("error_code"),
		ErrorDescription: either("error_description"),
	}
}

// Classification is the tagged-union result of classifying recovery
// parameters.
type Classification interface {
	isClassification()
}

// Invalid is terminal: the link cannot be used and the user must request a
// new one. Message is user-facing.
type Invalid struct {
	Message string
}

// Ready means a valid session already exists and no exchange is needed.
type Ready struct{}

// PendingCodeExchange means the modern authorization-code exchange must run.
type PendingCodeExchange struct {
	Code string
}

// PendingTokenExchange means the legacy token-pair exchange must run.
type PendingTokenExchange struct {
	AccessToken  string
	RefreshToken string
}

func (Invalid) isClassification()              {}
func (Ready) isClassification()                {}
func (PendingCodeExchange) isClassification()  {}
func (PendingTokenExchange) isClassification() {}

// Classify applies the delivery-path precedence, first match wins:
//
//  1. explicit error payload: terminal Invalid
//  2. an existing valid session: Ready, no exchange needed
//  3. authorization code: PendingCodeExchange
//  4. legacy token pair: PendingTokenExchange
//  5. nothing usable: Invalid with the generic message
//
// The session check runs before any exchange on purpose: the provider's
// asynchronous recovery event may have already consumed the token by the time
// the synchronous parse runs.
func Classify(params Params, hasSession bool) Classification {
	if params.Error != "" || params.ErrorCode != "" {
		return Invalid{Message: invalidMessage(params)}
	}
	if hasSession {
		return Ready{}
	}
	if params.Code != "" {
		return PendingCodeExchange{Code: params.Code}
	}
	if params.AccessToken != "" && params.RefreshToken != "" {
		return PendingTokenExchange{
			AccessToken:  params.AccessToken,
			RefreshToken: params.RefreshToken,
		}
	}
	return Invalid{Message: GenericInvalidMessage}
}

// invalidMessage derives the user-facing text for an explicit error payload:
// the URL-decoded error_description with '+' as space, or the generic message
// when absent.
func invalidMessage(params Params) string {
	if params.ErrorDescription == "" {
		return GenericInvalidMessage
	}

	decoded := strings.ReplaceAll(params.ErrorDescription, "+", " ")
	if unescaped, err := url.QueryUnescape(decoded); err == nil {
		return unescaped
	}
	return decoded
}
