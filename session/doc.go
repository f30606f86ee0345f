// File: session/doc.go
// Package session
// License: Apache-2.0
//
// Session state owned by one work processor. The store is never locked:
// it is reached only through items planned on its owner, and those items
// refuse to run anywhere else. Expiry follows a sliding TTL refreshed by
// every mutation; Sweep evicts what has expired.

package session
