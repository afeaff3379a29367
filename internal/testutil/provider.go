package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
)

// DefaultTokenResponse is served by the token endpoint unless overridden.
const DefaultTokenResponse = `{"access_token":"access-1","token_type":"Bearer","expires_in":3600,"refresh_token":"refresh-1"}`

const signingKeyID = "testutil-key"

// Provider is a mock OpenID provider served over TLS. It publishes a
// discovery document, a JWKS and a token endpoint whose responses can be
// changed per test. Use Client for requests so the server certificate is
// trusted.
type Provider struct {
	Server *httptest.Server

	key *rsa.PrivateKey

	discoveryHits atomic.Int32
	tokenHits     atomic.Int32

	mu              sync.Mutex
	discoveryStatus int
	discoveryDoc    map[string]any
	tokenStatus     int
	tokenBody       string
	tokenHandler    func(w http.ResponseWriter, form url.Values)
	tokenForms      []url.Values
}

// NewProvider starts a mock provider that is closed when the test ends.
func NewProvider(t *testing.T) *Provider {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate signing key: %v", err)
	}

	p := &Provider{
		key:             key,
		discoveryStatus: http.StatusOK,
		tokenStatus:     http.StatusOK,
		tokenBody:       DefaultTokenResponse,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /.well-known/openid-configuration", p.serveDiscovery)
	mux.HandleFunc("GET /keys", p.serveKeys)
	mux.HandleFunc("POST /token", p.serveToken)

	p.Server = httptest.NewTLSServer(mux)
	t.Cleanup(p.Server.Close)

	return p
}

// Issuer returns the issuer URL of the provider.
func (p *Provider) Issuer() string {
	return p.Server.URL
}

// Client returns an HTTP client that trusts the provider's certificate.
func (p *Provider) Client() *http.Client {
	return p.Server.Client()
}

// DiscoveryDocument returns the document the provider publishes by default.
func (p *Provider) DiscoveryDocument() map[string]any {
	issuer := p.Issuer()
	return map[string]any{
		"issuer":                                issuer,
		"authorization_endpoint":                issuer + "/authorize",
		"token_endpoint":                        issuer + "/token",
		"jwks_uri":                              issuer + "/keys",
		"response_types_supported":              []string{"code"},
		"subject_types_supported":               []string{"public"},
		"id_token_signing_alg_values_supported": []string{"RS256"},
		"code_challenge_methods_supported":      []string{"S256"},
		"grant_types_supported":                 []string{"authorization_code", "refresh_token"},
		"scopes_supported":                      []string{"openid", "profile", "email", "offline_access"},
	}
}

// SetDiscoveryDocument replaces the published discovery document.
func (p *Provider) SetDiscoveryDocument(doc map[string]any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.discoveryDoc = doc
}

// FailDiscovery makes the discovery endpoint answer with status.
func (p *Provider) FailDiscovery(status int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.discoveryStatus = status
}

// SetTokenResponse sets the status and JSON body of token responses.
func (p *Provider) SetTokenResponse(status int, body string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokenStatus = status
	p.tokenBody = body
	p.tokenHandler = nil
}

// SetTokenHandler takes over the token endpoint. The form is recorded
// before handler runs.
func (p *Provider) SetTokenHandler(handler func(w http.ResponseWriter, form url.Values)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokenHandler = handler
}

// DiscoveryHits returns the number of discovery requests served.
func (p *Provider) DiscoveryHits() int {
	return int(p.discoveryHits.Load())
}

// TokenHits returns the number of token requests served.
func (p *Provider) TokenHits() int {
	return int(p.tokenHits.Load())
}

// TokenForms returns copies of the token request forms in arrival order.
func (p *Provider) TokenForms() []url.Values {
	p.mu.Lock()
	defer p.mu.Unlock()

	forms := make([]url.Values, len(p.tokenForms))
	for i, f := range p.tokenForms {
		forms[i] = cloneValues(f)
	}
	return forms
}

// LastTokenForm returns the most recent token request form, or nil.
func (p *Provider) LastTokenForm() url.Values {
	forms := p.TokenForms()
	if len(forms) == 0 {
		return nil
	}
	return forms[len(forms)-1]
}

// IDToken signs an ID token for clientID carrying nonce. extra claims are
// merged over the defaults.
func (p *Provider) IDToken(t *testing.T, clientID, nonce string, extra map[string]any) string {
	t.Helper()

	now := time.Now()
	claims := map[string]any{
		"iss": p.Issuer(),
		"sub": "user-1",
		"aud": clientID,
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
	}
	if nonce != "" {
		claims["nonce"] = nonce
	}
	for k, v := range extra {
		claims[k] = v
	}

	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.RS256, Key: jose.JSONWebKey{Key: p.key, KeyID: signingKeyID}},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		t.Fatalf("failed to create signer: %v", err)
	}

	payload, err := json.Marshal(claims)
	if err != nil {
		t.Fatalf("failed to marshal claims: %v", err)
	}
	jws, err := signer.Sign(payload)
	if err != nil {
		t.Fatalf("failed to sign id token: %v", err)
	}
	raw, err := jws.CompactSerialize()
	if err != nil {
		t.Fatalf("failed to serialize id token: %v", err)
	}
	return raw
}

func (p *Provider) serveDiscovery(w http.ResponseWriter, _ *http.Request) {
	p.discoveryHits.Add(1)

	p.mu.Lock()
	status := p.discoveryStatus
	doc := p.discoveryDoc
	p.mu.Unlock()

	if status != http.StatusOK {
		http.Error(w, http.StatusText(status), status)
		return
	}
	if doc == nil {
		doc = p.DiscoveryDocument()
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(doc)
}

func (p *Provider) serveKeys(w http.ResponseWriter, _ *http.Request) {
	jwks := jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{
		Key:       &p.key.PublicKey,
		KeyID:     signingKeyID,
		Algorithm: string(jose.RS256),
		Use:       "sig",
	}}}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(jwks)
}

func (p *Provider) serveToken(w http.ResponseWriter, r *http.Request) {
	p.tokenHits.Add(1)

	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	p.mu.Lock()
	p.tokenForms = append(p.tokenForms, cloneValues(r.PostForm))
	handler := p.tokenHandler
	status := p.tokenStatus
	body := p.tokenBody
	p.mu.Unlock()

	if handler != nil {
		handler(w, r.PostForm)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}
