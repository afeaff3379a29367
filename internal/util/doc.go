// Package util provides common utility functions used across the appauth module.
//
// Key utilities:
//   - SafeTruncate: Safely truncates strings for logging sensitive data
//   - NormalizeURL: Trailing-slash insensitive URL comparison
//   - IsLoopbackHostname: RFC 8252 loopback redirect host detection
package util
