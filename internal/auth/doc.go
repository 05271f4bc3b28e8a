// Package auth authenticates and authorizes portal callers.
//
// # Tokens
//
// Callers present an HS256 JWT carrying sub, username, role, iat and exp.
// The secret is shared by every service through configuration and must be
// at least MinSecretLength bytes.
//
// # Validators
//
// Two Validator backends return identical verdicts for the same token:
//
//   - LocalValidator verifies the signature and expiry in-process.
//   - DelegatedValidator asks IdentityService/ValidateToken and reports
//     ErrAuthorityUnavailable when the identity service cannot be reached.
//
// Which one a service uses is chosen by auth.validation (local|delegated).
//
// # Interceptor
//
// UnaryInterceptor reads the token from the request's token field, falling
// back to "authorization: Bearer" metadata, and stores an AuthContext in the
// request context. Handlers call Require to enforce roles:
//
//	caller := auth.FromContext(ctx)
//	if err := auth.Require(caller, auth.RoleFaculty); err != nil {
//		return nil, err
//	}
package auth
