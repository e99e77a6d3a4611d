package ociclient

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	dockerconfig "github.com/docker/cli/cli/config"
)

// Credentials is one of the three credential kinds a registry is
// authenticated against.
type Credentials struct {
	Kind     CredentialKind
	Username string
	Password string
	Token    string
}

type CredentialKind int

const (
	CredNone CredentialKind = iota
	CredBasic
	CredBearer
)

// AuthHeader renders the credentials as an Authorization header value.
func (c Credentials) AuthHeader() (string, error) {
	switch c.Kind {
	case CredBasic:
		enc := base64.StdEncoding.EncodeToString([]byte(c.Username + ":" + c.Password))
		return "Basic " + enc, nil
	case CredBearer:
		return "Bearer " + c.Token, nil
	default:
		return "", nil
	}
}

// Auth holds the registry credential chain: a default set of
// credentials plus per-registry overrides; a per-registry entry is
// consulted first, the default only when none is set.
type Auth struct {
	Default   Credentials
	PerHost   map[string]Credentials
}

// NewAuthFromEnvironment builds an Auth following the precedence in
// spec.md §4.7: DEACON_REGISTRY_TOKEN, then DEACON_REGISTRY_USER plus
// DEACON_REGISTRY_PASS, then ~/.docker/config.json, then anonymous.
// A registry-specific credential set by SetCredentials always
// overrides the default.
func NewAuthFromEnvironment() *Auth {
	a := &Auth{PerHost: map[string]Credentials{}}

	if tok := os.Getenv("DEACON_REGISTRY_TOKEN"); tok != "" {
		a.Default = Credentials{Kind: CredBearer, Token: tok}
		return a
	}
	if user, pass := os.Getenv("DEACON_REGISTRY_USER"), os.Getenv("DEACON_REGISTRY_PASS"); user != "" && pass != "" {
		a.Default = Credentials{Kind: CredBasic, Username: user, Password: pass}
		return a
	}

	a.loadDockerConfig()
	return a
}

// loadDockerConfig populates PerHost from ~/.docker/config.json; any
// error is swallowed since the absence of a docker config simply
// means registries fall back to anonymous access.
func (a *Auth) loadDockerConfig() {
	cfg, err := dockerconfig.Load(dockerconfig.Dir())
	if err != nil {
		return
	}
	for host := range cfg.AuthConfigs {
		ac, err := cfg.GetAuthConfig(host)
		if err != nil {
			continue
		}
		switch {
		case ac.IdentityToken != "":
			a.PerHost[host] = Credentials{Kind: CredBearer, Token: ac.IdentityToken}
		case ac.Username != "" && ac.Password != "":
			a.PerHost[host] = Credentials{Kind: CredBasic, Username: ac.Username, Password: ac.Password}
		}
	}
}

// SetCredentials registers a registry-specific credential override.
func (a *Auth) SetCredentials(registry string, creds Credentials) {
	a.PerHost[registry] = creds
}

// CredentialsFor returns the credentials for registry: a per-host
// override if one is set, otherwise the default.
func (a *Auth) CredentialsFor(registry string) Credentials {
	if c, ok := a.PerHost[registry]; ok {
		return c
	}
	return a.Default
}

// challenge is a parsed "WWW-Authenticate: Bearer realm=...,service=...,scope=..." header.
type challenge struct {
	Realm   string
	Service string
	Scope   string
}

func parseBearerChallenge(header string) (challenge, error) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return challenge{}, fmt.Errorf("ociclient: not a Bearer challenge: %q", header)
	}
	var c challenge
	for _, param := range strings.Split(strings.TrimPrefix(header, prefix), ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(param), "=")
		if !ok {
			continue
		}
		value = strings.Trim(value, `"`)
		switch strings.TrimSpace(key) {
		case "realm":
			c.Realm = value
		case "service":
			c.Service = value
		case "scope":
			c.Scope = value
		}
	}
	if c.Realm == "" {
		return challenge{}, fmt.Errorf("ociclient: missing realm in WWW-Authenticate header %q", header)
	}
	return c, nil
}

// ExchangeAnonymousToken parses a Bearer challenge and exchanges it
// for an access token by anonymously GETing the realm endpoint with
// the service and scope parameters appended.
func (a *Auth) ExchangeAnonymousToken(ctx context.Context, http HTTPClient, wwwAuthenticate string) (string, error) {
	c, err := parseBearerChallenge(wwwAuthenticate)
	if err != nil {
		return "", err
	}

	tokenURL := c.Realm
	var params []string
	if c.Service != "" {
		params = append(params, "service="+c.Service)
	}
	if c.Scope != "" {
		params = append(params, "scope="+c.Scope)
	}
	if len(params) > 0 {
		tokenURL += "?" + strings.Join(params, "&")
	}

	body, err := http.Get(ctx, tokenURL)
	if err != nil {
		return "", fmt.Errorf("ociclient: anonymous token exchange at %s: %w", tokenURL, err)
	}

	var parsed struct {
		Token       string `json:"token"`
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("ociclient: parsing token response: %w", err)
	}
	if parsed.Token != "" {
		return parsed.Token, nil
	}
	if parsed.AccessToken != "" {
		return parsed.AccessToken, nil
	}
	return "", fmt.Errorf("ociclient: token response contained neither \"token\" nor \"access_token\"")
}
