// Package cli provides the notesync command-line client.
//
// Every command works on the local SQLite replica first, so notes can be
// created, edited and trashed with no server in reach; the outbox carries
// the changes to the server on the next sync.
//
// Key features:
//   - add / edit / delete / restore / favorite / show / list / purge
//   - sync, resync and status of the sync session
//   - watch: continuous sync driven by the realtime notifier
//   - login / logout with a server-issued access token
//   - attach / fetch for note attachments
//
// Without a command an interactive shell starts (see App.Root and runREPL)
// that syncs in the background and tracks connectivity in its prompt.
package cli
