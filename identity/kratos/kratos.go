// Package kratos verifies access tokens against an Ory Kratos whoami endpoint.
// It is the identity verifier for deployments that put the dashboard behind
// Kratos instead of the backend's own /auth/me.
package kratos

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	kratos "github.com/ory/kratos-client-go"

	"github.com/sentimenta/dashclient/api"
)

var (
	// ErrAuthFailed is returned when Kratos rejects the token.
	ErrAuthFailed = errors.New("kratos: session invalid or expired")
	// ErrSessionInactive is returned for a session Kratos reports inactive.
	ErrSessionInactive = errors.New("kratos: session inactive")
	// ErrMissingIdentity is returned when the session carries no identity.
	ErrMissingIdentity = errors.New("kratos: missing identity")
	// ErrUnavailable is returned when Kratos cannot be reached.
	ErrUnavailable = errors.New("kratos: unavailable")
)

const defaultTimeout = 3 * time.Second

// Verifier resolves session tokens via Kratos.
type Verifier struct {
	client  *kratos.APIClient
	timeout time.Duration
}

// NewVerifier returns a verifier for the Kratos public API at baseURL.
func NewVerifier(baseURL string, httpClient *http.Client) *Verifier {
	configuration := kratos.NewConfiguration()
	configuration.Servers = []kratos.ServerConfiguration{
		{URL: baseURL},
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	configuration.HTTPClient = httpClient

	return &Verifier{
		client:  kratos.NewAPIClient(configuration),
		timeout: defaultTimeout,
	}
}

// Verify implements gate.Verifier.
func (v *Verifier) Verify(ctx context.Context, accessToken string) (api.Identity, error) {
	if accessToken == "" {
		return api.Identity{}, ErrAuthFailed
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	session, resp, err := v.client.FrontendAPI.ToSession(ctx).XSessionToken(accessToken).Execute()
	if err != nil {
		if resp != nil {
			if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
				return api.Identity{}, ErrAuthFailed
			}
			return api.Identity{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
		}
		return api.Identity{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	if session.Active != nil && !*session.Active {
		return api.Identity{}, ErrSessionInactive
	}
	if session.Identity == nil {
		return api.Identity{}, ErrMissingIdentity
	}

	id := api.Identity{
		ID:   session.Identity.Id,
		Plan: "free",
	}
	if traits, ok := session.Identity.Traits.(map[string]interface{}); ok {
		id.Email = stringTrait(traits, "email")
		if name := nameTrait(traits["name"]); name != "" {
			id.Name = &name
		}
		if avatar := stringTrait(traits, "picture"); avatar != "" {
			id.AvatarURL = &avatar
		}
	}
	if meta, ok := session.Identity.MetadataPublic.(map[string]interface{}); ok {
		if plan := stringTrait(meta, "plan"); plan != "" {
			id.Plan = plan
		}
	}
	return id, nil
}

func stringTrait(traits map[string]interface{}, key string) string {
	if s, ok := traits[key].(string); ok {
		return s
	}
	return ""
}

// nameTrait accepts either a plain string or Kratos' {first, last} object.
func nameTrait(v interface{}) string {
	switch n := v.(type) {
	case string:
		return n
	case map[string]interface{}:
		first, _ := n["first"].(string)
		last, _ := n["last"].(string)
		switch {
		case first != "" && last != "":
			return first + " " + last
		case first != "":
			return first
		default:
			return last
		}
	default:
		return ""
	}
}
