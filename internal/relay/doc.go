// Package relay forwards roster change notifications from Postgres to a chat.
//
// A session opens one connection and runs two goroutines on it:
//
//	Bridge: FrameSource.NextFrame -> Queue   (background)
//	Loop:   Queue.Recv -> Fetcher -> Format -> Sender.SendText   (foreground)
//
// Any connection, subscribe or query error ends the session. Supervisor
// starts a fresh one after the backoff delay, forever. Chat send errors are
// logged and do not end the session.
//
// Every notification triggers a fetch of the newest roster_events row, not
// of the row that caused it, so a burst of notifications can post the same
// row more than once.
package relay
