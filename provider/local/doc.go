// Package local implements an identity provider backed by in-process account
// records. It is the default IdentityClient for development, tests, and
// single-node deployments.
package local
