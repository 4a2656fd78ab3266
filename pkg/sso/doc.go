// Package sso is the credential boundary: it verifies game SSO tokens
// via OIDC, extracts the character identity claims the ownership ledger
// consumes, and tracks live credentials per owner hash so revocation can
// answer "does any valid proof of control remain".
package sso
