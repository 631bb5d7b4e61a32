// Package notifier sends operator alerts about the roster relay.
//
// Alerts go to a separate chat from roster posts. Each alert text is
// suppressed for a dedup window after it was sent, so a database that stays
// down for an hour produces one "session failed" message, not one every
// retry. Sends are retried with exponential backoff.
package notifier
