// Package billing extracts facts from billing statements and keeps contract
// totals and monthly ledgers consistent with them.
//
// Every function here is pure: contracts passed in are never modified, and
// callers persist the returned copies.
package billing
