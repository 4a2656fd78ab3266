// Package cascade re-evaluates account tier assignments when the facts
// behind them change. Triggers are explicit events on an ordered queue,
// consumed by workers; each trigger maps to the minimal set of accounts
// whose assignment could have changed, so a membership edit never scans
// the whole account base.
//
// Re-evaluation of one account is the unit of work: read the account,
// resolve its tier from current facts, write only when the result
// differs, and emit exactly one tier_changed event per actual change.
// Two re-evaluations of the same account are serialized by a per-account
// lock; different accounts proceed concurrently.
package cascade
