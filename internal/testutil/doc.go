// Package testutil provides testing utilities for the appauth packages: a
// mock OpenID provider served over TLS, a controllable clock, and small
// assertion helpers.
package testutil
