package appauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/mcp-appauth/connection"
	"github.com/giantswarm/mcp-appauth/instrumentation"
	"github.com/giantswarm/mcp-appauth/interaction"
	"github.com/giantswarm/mcp-appauth/internal/util"
	"github.com/giantswarm/mcp-appauth/oidc"
	"github.com/giantswarm/mcp-appauth/request"
	"github.com/giantswarm/mcp-appauth/security"
	"github.com/giantswarm/mcp-appauth/token"
)

// Outcome discard reasons
const (
	discardNoPending     = "no_pending"
	discardStateMismatch = "state_mismatch"
)

// Coordinator runs authorization-code flows and refresh exchanges against
// OpenID providers. It holds at most one pending authorization; refresh
// exchanges share no state and may run concurrently with anything.
//
// A Coordinator is safe for concurrent use.
type Coordinator struct {
	surface    interaction.Surface
	config     *Config
	logger     *slog.Logger
	httpClient *http.Client

	resolvers map[connection.Policy]*oidc.Resolver
	exchanger *token.Exchanger
	verifier  *token.Verifier
	throttle  *security.Throttle
	auditor   *security.Auditor

	instrumentation *instrumentation.Instrumentation
	metrics         *instrumentation.Metrics
	tracer          trace.Tracer
	unregisterGauge func() error

	slot      pendingSlot
	closed    atomic.Bool
	closeOnce sync.Once
}

// New creates a Coordinator that presents authorization requests through
// surface. A nil config uses defaults. Close releases its resources.
func New(surface interaction.Surface, config *Config) (*Coordinator, error) {
	if surface == nil {
		return nil, fmt.Errorf("interaction surface is required")
	}

	var cfg Config
	if config != nil {
		cfg = *config
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// Apply secure defaults
	applySecureDefaults(&cfg, logger)

	inst, err := instrumentation.New(cfg.Instrumentation)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize instrumentation: %w", err)
	}

	c := &Coordinator{
		surface:    surface,
		config:     &cfg,
		logger:     logger,
		httpClient: cfg.HTTPClient,
		resolvers: map[connection.Policy]*oidc.Resolver{
			connection.Strict:   oidc.NewResolver(cfg.DiscoveryCacheTTL, logger),
			connection.Insecure: oidc.NewResolver(cfg.DiscoveryCacheTTL, logger),
		},
		exchanger:       token.NewExchanger(logger).WithClock(cfg.Clock),
		verifier:        token.NewVerifier(logger),
		auditor:         security.NewAuditor(logger, cfg.EnableAuditLogging),
		instrumentation: inst,
		metrics:         inst.Metrics(),
		tracer:          inst.Tracer("coordinator"),
	}
	c.auditor.OnEvent(c.metrics.RecordAuditEvent)

	if cfg.RateLimit.Rate > 0 {
		c.throttle = security.NewThrottle(cfg.RateLimit.Rate, cfg.RateLimit.Burst, cfg.RateLimit.MaxEntries, logger)
	}

	c.unregisterGauge, err = inst.RegisterPendingCallback(c.slot.occupancy)
	if err != nil {
		if c.throttle != nil {
			c.throttle.Stop()
		}
		return nil, fmt.Errorf("failed to register pending gauge: %w", err)
	}

	return c, nil
}

// Authorize runs an authorization-code flow: discovery, launching the
// authorization request on the interaction surface, waiting for its
// outcome, and exchanging the code. It blocks until the flow settles or ctx
// is done.
//
// Every error is a *FlowError. Discovery failures, including a malformed
// issuer, are ConfigurationFetchFailed and never reach the surface;
// interaction errors,
// cancellation of ctx while waiting, and overlap conflicts are
// AuthenticationFailed; token endpoint failures are TokenExchangeFailed.
func (c *Coordinator) Authorize(ctx context.Context, params AuthorizeParams) (*TokenResult, error) {
	ctx, operationID := security.EnsureOperationID(ctx)
	ctx, span := c.tracer.Start(ctx, instrumentation.SpanAuthorize)
	defer span.End()

	policy := connection.Select(params.AllowInsecureConnections)
	instrumentation.AddFlowAttributes(span, operationID, params.Issuer, params.ClientID,
		request.JoinScopes(params.Scopes), policy.String())
	c.metrics.RecordAuthorizationStarted(ctx, issuerHost(params.Issuer))

	result, err := c.authorize(ctx, operationID, policy, &params)
	c.observe(ctx, span, params.Issuer, params.ClientID, err, c.metrics.RecordAuthorizationCompleted)
	if err != nil {
		return nil, err
	}

	c.logger.InfoContext(ctx, "Authorization completed",
		"operation_id", operationID,
		"issuer", params.Issuer,
		"token_type", result.TokenType,
		"refresh_issued", result.RefreshToken != nil,
		"expires", result.AccessTokenExpirationDate)

	return result, nil
}

func (c *Coordinator) authorize(ctx context.Context, operationID string, policy connection.Policy, params *AuthorizeParams) (*TokenResult, error) {
	if c.closed.Load() {
		return nil, classify(CategoryInvalidRequest, MessageInvalidRequest, ErrCoordinatorClosed)
	}
	if err := params.validate(); err != nil {
		return nil, classify(CategoryInvalidRequest, MessageInvalidRequest, err)
	}

	client := c.client(ctx, policy, params.Issuer)

	if err := c.wait(ctx, params.Issuer); err != nil {
		return nil, classify(CategoryConfigurationFetchFailed, MessageFetchConfiguration, err)
	}

	cfg, err := c.discover(ctx, policy, params.Issuer, client)
	if err != nil {
		return nil, classify(CategoryConfigurationFetchFailed, MessageFetchConfiguration, err)
	}

	authReq, err := request.NewAuthorizationRequest(cfg, params.ClientID, params.RedirectURL, params.Scopes, params.AdditionalParameters)
	if err != nil {
		return nil, classify(CategoryInvalidRequest, MessageInvalidRequest, err)
	}
	instrumentation.AddPKCEAttributes(trace.SpanFromContext(ctx), authReq.CodeChallengeMethod)

	rec := newPendingAuthorization(operationID, policy, client, authReq, c.config.Clock())
	previous, err := c.slot.install(rec, c.config.OverlapPolicy)
	if errors.Is(err, ErrCoordinatorClosed) {
		c.logger.DebugContext(ctx, "Coordinator closed during discovery", "operation_id", operationID)
		return nil, classify(CategoryAuthenticationFailed, MessageAuthenticate, err)
	}
	if err != nil {
		c.logger.WarnContext(ctx, "Rejecting authorization while another is pending",
			"operation_id", operationID,
			"policy", c.config.OverlapPolicy.String())
		return nil, classify(CategoryAuthenticationFailed, MessageAuthenticate, err)
	}
	if previous != nil {
		c.logger.WarnContext(ctx, "Superseding pending authorization",
			"operation_id", operationID,
			"superseded_operation_id", previous.operationID,
			"pending_for", c.config.Clock().Sub(previous.createdAt))
		previous.handle.settle(nil, classify(CategoryAuthenticationFailed, MessageAuthenticate, ErrSuperseded))
	}

	c.auditor.LogAuthorizationStarted(ctx, params.Issuer, params.ClientID, authReq.Scope)
	c.logger.DebugContext(ctx, "Launching authorization request",
		"operation_id", operationID,
		"authorization_endpoint", cfg.AuthorizationEndpoint,
		"state_prefix", util.SafeTruncate(authReq.State, 8))

	deliver := func(outcome interaction.Outcome) {
		_ = c.deliverTo(ctx, rec, outcome)
	}
	if err := c.surface.Launch(ctx, authReq, deliver); err != nil {
		c.slot.clear(rec)
		rec.handle.settle(nil, classify(CategoryAuthenticationFailed, MessageAuthenticate,
			fmt.Errorf("failed to launch interaction: %w", err)))
		return rec.handle.wait()
	}

	select {
	case outcome := <-rec.outcomes:
		rec.handle.settle(c.complete(ctx, rec, outcome))
	case <-rec.handle.done:
	case <-ctx.Done():
		c.slot.clear(rec)
		rec.handle.settle(nil, classify(CategoryAuthenticationFailed, MessageAuthenticate,
			fmt.Errorf("interaction abandoned: %w", ctx.Err())))
	}

	return rec.handle.wait()
}

// complete turns an accepted outcome into the flow's result.
func (c *Coordinator) complete(ctx context.Context, rec *pendingAuthorization, outcome interaction.Outcome) (*TokenResult, error) {
	if outcome.Err != nil {
		return nil, classify(CategoryAuthenticationFailed, MessageAuthenticate, outcome.Err)
	}

	tokenReq, err := outcome.Response(rec.request).TokenExchangeRequest()
	if err != nil {
		return nil, classify(CategoryAuthenticationFailed, MessageAuthenticate, err)
	}

	result, err := c.exchange(ctx, rec.client, tokenReq)
	if err != nil {
		return nil, classify(CategoryTokenExchangeFailed, MessageExchangeToken, err)
	}

	c.auditor.LogTokenIssued(ctx, rec.request.Configuration.Issuer, rec.request.ClientID,
		rec.request.Scope, result.RefreshToken != nil)

	return result, nil
}

// Refresh exchanges a refresh token for new tokens. It never touches the
// pending authorization.
//
// Every error is a *FlowError: ConfigurationFetchFailed for discovery
// failures, TokenExchangeFailed for token endpoint failures.
func (c *Coordinator) Refresh(ctx context.Context, params RefreshParams) (*TokenResult, error) {
	ctx, operationID := security.EnsureOperationID(ctx)
	ctx, span := c.tracer.Start(ctx, instrumentation.SpanRefresh)
	defer span.End()

	policy := connection.Select(params.AllowInsecureConnections)
	instrumentation.AddFlowAttributes(span, operationID, params.Issuer, params.ClientID,
		request.JoinScopes(params.Scopes), policy.String())

	result, err := c.refresh(ctx, policy, &params)
	c.observe(ctx, span, params.Issuer, params.ClientID, err, c.metrics.RecordRefreshCompleted)
	if err != nil {
		return nil, err
	}

	c.logger.InfoContext(ctx, "Refresh completed",
		"operation_id", operationID,
		"issuer", params.Issuer,
		"token_type", result.TokenType,
		"expires", result.AccessTokenExpirationDate)

	return result, nil
}

func (c *Coordinator) refresh(ctx context.Context, policy connection.Policy, params *RefreshParams) (*TokenResult, error) {
	if c.closed.Load() {
		return nil, classify(CategoryInvalidRequest, MessageInvalidRequest, ErrCoordinatorClosed)
	}
	if err := params.validate(); err != nil {
		return nil, classify(CategoryInvalidRequest, MessageInvalidRequest, err)
	}

	client := c.client(ctx, policy, params.Issuer)

	if err := c.wait(ctx, params.Issuer); err != nil {
		return nil, classify(CategoryConfigurationFetchFailed, MessageFetchConfiguration, err)
	}

	cfg, err := c.discover(ctx, policy, params.Issuer, client)
	if err != nil {
		return nil, classify(CategoryConfigurationFetchFailed, MessageFetchConfiguration, err)
	}

	tokenReq, err := request.NewRefreshRequest(cfg, params.ClientID, params.RedirectURL, params.Scopes,
		params.RefreshToken, params.AdditionalParameters)
	if err != nil {
		return nil, classify(CategoryInvalidRequest, MessageInvalidRequest, err)
	}

	result, err := c.exchange(ctx, client, tokenReq)
	if err != nil {
		return nil, classify(CategoryTokenExchangeFailed, MessageRefreshToken, err)
	}

	rotated := result.RefreshToken != nil && *result.RefreshToken != params.RefreshToken
	c.auditor.LogTokenRefreshed(ctx, params.Issuer, params.ClientID, rotated)

	return result, nil
}

// Deliver hands an interaction outcome to the pending authorization. It
// returns ErrNoPendingAuthorization when nothing is pending and
// ErrStateMismatch when the outcome's state belongs to another request; in
// both cases the outcome is discarded. Deliver does not wait for the
// exchange.
func (c *Coordinator) Deliver(ctx context.Context, outcome interaction.Outcome) error {
	rec, err := c.slot.takeCurrent(outcome)
	if err != nil {
		c.discard(ctx, rec, err)
		return err
	}
	rec.outcomes <- outcome
	return nil
}

// HandleRedirect parses a redirect URL received by the application and
// delivers it as an outcome.
func (c *Coordinator) HandleRedirect(ctx context.Context, redirectURL string) error {
	outcome, err := interaction.ParseRedirect(redirectURL)
	if err != nil {
		return err
	}
	return c.Deliver(ctx, outcome)
}

// deliverTo hands outcome to rec if rec is still pending.
func (c *Coordinator) deliverTo(ctx context.Context, rec *pendingAuthorization, outcome interaction.Outcome) error {
	if err := c.slot.take(rec, outcome); err != nil {
		c.discard(ctx, rec, err)
		return err
	}
	rec.outcomes <- outcome
	return nil
}

// discard records an outcome that matched no pending authorization.
func (c *Coordinator) discard(ctx context.Context, rec *pendingAuthorization, reason error) {
	tag := discardNoPending
	if errors.Is(reason, ErrStateMismatch) {
		tag = discardStateMismatch
	}

	c.metrics.RecordOutcomeDiscarded(ctx, tag)
	c.auditor.LogOutcomeDiscarded(ctx, tag)

	attrs := []any{"reason", tag}
	if rec != nil {
		attrs = append(attrs, "pending_operation_id", rec.operationID)
	}
	if tag == discardStateMismatch {
		c.logger.WarnContext(ctx, "Discarding interaction outcome", attrs...)
		return
	}
	c.logger.DebugContext(ctx, "Discarding interaction outcome", attrs...)
}

// HasPendingAuthorization reports whether an authorization is waiting for
// its interaction outcome.
func (c *Coordinator) HasPendingAuthorization() bool {
	return c.slot.get() != nil
}

// ClearDiscoveryCache drops cached discovery documents.
func (c *Coordinator) ClearDiscoveryCache() {
	for _, resolver := range c.resolvers {
		resolver.ClearCache()
	}
}

// Close fails a pending authorization with ErrCoordinatorClosed and
// releases the coordinator's resources. Later calls fail with
// ErrCoordinatorClosed. Close is idempotent.
func (c *Coordinator) Close(ctx context.Context) error {
	var closeErr error

	c.closeOnce.Do(func() {
		c.closed.Store(true)

		if rec := c.slot.drain(); rec != nil {
			rec.handle.settle(nil, classify(CategoryAuthenticationFailed, MessageAuthenticate, ErrCoordinatorClosed))
		}
		if c.throttle != nil {
			c.throttle.Stop()
		}
		if c.unregisterGauge != nil {
			closeErr = c.unregisterGauge()
		}
		if err := c.instrumentation.Shutdown(ctx); err != nil && closeErr == nil {
			closeErr = err
		}
	})

	return closeErr
}

// client builds the HTTP client for one operation under policy.
func (c *Coordinator) client(ctx context.Context, policy connection.Policy, issuer string) *http.Client {
	if policy.IsInsecure() {
		c.logger.WarnContext(ctx, "⚠️  SECURITY WARNING: Insecure connection policy selected",
			"issuer", issuer,
			"risk", "TLS certificates are not verified and plain http is allowed",
			"recommendation", "Only use AllowInsecureConnections against local development providers")
	}
	return policy.Client(c.httpClient)
}

// wait applies the per-issuer throttle.
func (c *Coordinator) wait(ctx context.Context, issuer string) error {
	if c.throttle == nil {
		return nil
	}

	host := issuerHost(issuer)
	waited, err := c.throttle.Wait(ctx, host)
	if err != nil {
		c.metrics.RecordRateLimitWait(ctx, host, true)
		c.auditor.LogRateLimitExceeded(ctx, host)
		return err
	}
	if waited {
		c.metrics.RecordRateLimitWait(ctx, host, false)
		c.logger.DebugContext(ctx, "Throttled request to issuer", "issuer_host", host)
	}
	return nil
}

// discover resolves the issuer's configuration. Each policy has its own
// cache so a document fetched without certificate checks never serves a
// strict call.
func (c *Coordinator) discover(ctx context.Context, policy connection.Policy, issuer string, client *http.Client) (*oidc.Configuration, error) {
	ctx, span := c.tracer.Start(ctx, instrumentation.SpanDiscovery)
	defer span.End()
	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrIssuer, issuer))

	start := time.Now()
	cfg, err := c.resolvers[policy].Resolve(ctx, issuer, client)
	c.metrics.RecordDiscovery(ctx, issuerHost(issuer), millisecondsSince(start), err)
	if err != nil {
		instrumentation.RecordError(span, err)
		return nil, err
	}

	instrumentation.SetSpanSuccess(span)
	return cfg, nil
}

// exchange calls the token endpoint, verifies a returned ID token when
// configured, and normalizes the response.
func (c *Coordinator) exchange(ctx context.Context, client *http.Client, req *request.TokenRequest) (*TokenResult, error) {
	ctx, span := c.tracer.Start(ctx, instrumentation.SpanTokenExchange)
	defer span.End()

	start := time.Now()
	raw, err := c.exchanger.Exchange(ctx, client, req)
	c.metrics.RecordTokenExchange(ctx, req.GrantType, OAuthErrorCode(err), millisecondsSince(start), err)
	if err != nil {
		instrumentation.RecordError(span, err)
		instrumentation.AddErrorAttributes(span, "", OAuthErrorCode(err))
		return nil, err
	}

	if c.config.VerifyIDToken && raw.IDToken != nil {
		if _, err := c.verifier.Verify(ctx, client, req.Configuration, req.ClientID, req.Nonce, *raw.IDToken); err != nil {
			if errors.Is(err, token.ErrNonceMismatch) {
				c.auditor.LogNonceMismatch(ctx, req.Configuration.Issuer, req.ClientID)
			}
			instrumentation.RecordError(span, err)
			return nil, err
		}
	}

	result := token.Normalize(raw)
	instrumentation.AddTokenAttributes(span, req.GrantType, result.TokenType, result.RefreshToken != nil)
	instrumentation.SetSpanSuccess(span)

	return result, nil
}

// observe records the settlement of an operation on its span, metrics and
// audit log.
func (c *Coordinator) observe(ctx context.Context, span trace.Span, issuer, clientID string, err error, record func(context.Context, string, error)) {
	category, _ := CategoryOf(err)
	record(ctx, string(category), err)

	if err == nil {
		instrumentation.SetSpanSuccess(span)
		return
	}

	code := OAuthErrorCode(err)
	instrumentation.RecordError(span, err)
	instrumentation.AddErrorAttributes(span, string(category), code)

	reason := code
	if reason == "" {
		var flowErr *FlowError
		if errors.As(err, &flowErr) {
			reason = flowErr.Message
		}
	}
	c.auditor.LogAuthFailure(ctx, issuer, clientID, string(category), reason)

	c.logger.WarnContext(ctx, "Operation failed",
		"operation_id", security.OperationIDFromContext(ctx),
		"issuer", issuer,
		"category", string(category),
		"error", err)
}

// issuerHost returns the host of an issuer URL for metric labels and
// throttle keys.
func issuerHost(issuer string) string {
	u, err := url.Parse(issuer)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Host
}

func millisecondsSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
