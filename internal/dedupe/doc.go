// Package dedupe remembers request keys for a fixed window so a retried
// request can be told apart from a new one.
package dedupe
