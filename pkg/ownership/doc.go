// Package ownership maintains the character ownership ledger. A
// character belongs to at most one account at a time, keyed by the
// owner hash issued with the character's credentials. When a hash
// changes hands the ledger supersedes the old binding and appends a
// historical record, so a returning identity can be reconnected to the
// account that previously held it.
package ownership
