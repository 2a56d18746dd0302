// Package portal provides the client-facing session layer for a music
// distribution service: a session store that mirrors the identity provider's
// auth state, an access guard, and moderation workflows for uploaded tracks.
//
// Session lifecycle:
//   - SessionStore subscribes to the identity provider before reading the
//     current session, so no auth event can slip between the two. All state
//     mutations run on a single internal queue; provider callbacks only
//     enqueue work, which keeps the provider's own callback serialization
//     from deadlocking against profile lookups.
//   - Profiles are resolved asynchronously after each auth event. A lookup
//     failure synthesizes a fallback profile from provider data, so a signed
//     in user is never left without one once the store settles.
//
// Access guard:
//   - Evaluate is a pure decision table over the store snapshot. Rules fire
//     in fixed priority order (auth before admin before role landing), and
//     redirects replace history so back-navigation cannot reach gated routes.
//   - guardware adapts the same table to HTTP middleware for go-router apps.
//
// Moderation:
//   - Tracks carry a moderation status persisted via Bun. TrackStateMachine
//     centralizes the transition graph, review metadata, hooks, and
//     persistence; soft-deleted tracks form a restorable recycle bin.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used by the store, the
//     repositories, and the state machine. Sinks run best-effort (errors are
//     logged) so you can forward to a database or queue without blocking
//     sign-in.
package portal
