// Package notify turns domain events into per-recipient emails.
//
// Triggers (chat message posted, group created, role changed, ticket
// assigned, registration decided) resolve their own recipient lists,
// render a stored template per recipient, and send immediately through
// the configured transport. Delivery failures are logged and never
// propagated to the primary action that raised the event.
//
// The unseen sweep is the one periodic trigger: it digests chat
// messages a user has left unread past a threshold, at most one email
// per (user, group) per sweep, de-duplicated across sweeps by the
// unseen_notifications ledger.
//
// Recipient addresses always prefer a user's personal email over the
// primary login address; the login address may be a synthetic internal
// domain, and notifications must reach a real inbox.
package notify
