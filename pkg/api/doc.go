// Package api exposes the administrative and reporting HTTP surface:
// tier CRUD, tier membership listings, read-only resolution previews,
// account lifecycle edits, and the SSO login/callback endpoints.
//
// Handlers are thin glue: validation errors surface synchronously, and
// every accepted edit enqueues its cascade trigger without waiting for
// the propagation to finish.
package api
