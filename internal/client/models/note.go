// Package models defines the client-side records of the local replica.
package models

// Note is the local copy of a note. LocalRef identifies it on this device
// from the moment it is created; RemoteID is bound once the server has
// accepted it (or immediately, for notes first seen through a pull).
type Note struct {
	LocalRef  string
	OwnerID   string
	RemoteID  string
	Title     string
	Body      string
	FolderID  string
	Favorite  bool
	Deleted   bool
	UpdatedAt string
	// Version is the last server version this copy is based on; 0 until
	// the server has seen it.
	Version int64
}

// Synced reports whether the server has ever accepted this note.
func (n *Note) Synced() bool {
	return n.RemoteID != ""
}

// ListFilter narrows List results.
type ListFilter struct {
	// Trash lists deleted notes instead of live ones.
	Trash         bool
	FavoritesOnly bool
	FolderID      string
}
