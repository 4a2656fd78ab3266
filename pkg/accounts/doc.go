// Package accounts owns the local account and character tables.
//
// An account holds exactly one current tier (never null) and at most one
// primary character. A character is an external game identity whose
// affiliation fields are refreshed from upstream over time; affiliation
// is not the same as ownership, which lives in the ownership package.
package accounts
