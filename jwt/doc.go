// Package jwt issues and verifies the signed access and refresh tokens
// exchanged with the backend, and lets clients read a token's expiry.
package jwt
