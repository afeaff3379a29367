// Package security provides the protective pieces around the authorization
// coordinator: per-issuer throttling, audit logging, operation IDs, and
// response headers for the loopback callback page.
//
// # Throttling
//
// Throttle limits outbound operations per issuer host using a token bucket
// per key, with LRU eviction to bound memory.
//
// Default configuration:
//   - MaxEntries: 1,000 unique keys
//   - CleanupInterval: 5 minutes
//   - IdleTimeout: 30 minutes
//
// ## Example Usage
//
//	throttle := security.NewThrottle(5, 10, 0, logger)
//	defer throttle.Stop()
//
//	if _, err := throttle.Wait(ctx, issuerHost); err != nil {
//	    return err
//	}
//
// # Audit Logging
//
// Auditor writes one structured "security_audit" record per event. Client
// identifiers are hashed; tokens, codes and verifiers are never logged.
//
//	auditor := security.NewAuditor(logger, true)
//	auditor.LogTokenIssued(ctx, issuer, clientID, scope, true)
//
// # Operation IDs
//
// Every authorize and refresh operation carries an operation ID in its
// context so that log records, audit events and spans can be correlated.
package security
