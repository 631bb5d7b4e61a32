// Package storage keeps an audit trail of roster messages the relay tried
// to post. SQLite is the only backend; "none" disables it.
package storage
