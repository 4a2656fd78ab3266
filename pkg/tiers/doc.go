// Package tiers owns the authorization tier registry and the resolution
// algorithm that picks the single tier an account holds.
//
// A tier grants itself to a character either unconditionally (public) or
// through explicit character, corporation, or alliance membership lists.
// Priorities are unique by construction; resolution picks the highest
// priority among the tiers available to the account's primary character
// and falls back to the reserved public tier when none are available.
//
// Tier edits never touch account state directly. They only become
// effective when the cascade engine re-runs resolution for the affected
// accounts.
package tiers
