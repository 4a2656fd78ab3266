// Package notify delivers tier change and account lifecycle events to
// dependent external services (chat servers, forums, market tools).
//
// Services implement a fixed Validate/TierChanged contract and register
// at startup; the enabled set comes from a YAML file that is hot-reloaded
// on change. Delivery is fire-and-forget relative to the cascade engine:
// a failed delivery is retried with exponential backoff and never rolls
// back the tier assignment that produced it.
package notify
