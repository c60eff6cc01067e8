// Package access centralizes the role-based predicates every view and
// handler consults. The functions are pure: no I/O, no state, safe to
// re-evaluate on every render.
package access

import "github.com/snehith2024/Wallify/internal/backend"

// CanMutate reports whether the user may delete or otherwise modify the
// wallpaper: admins may mutate anything, everyone else only their own
// uploads, and an absent user may mutate nothing.
func CanMutate(user backend.User, signedIn bool, wallpaper backend.Wallpaper) bool {
	if !signedIn {
		return false
	}
	return user.IsAdmin || user.ID == wallpaper.UploaderID
}

// Visible reports whether the wallpaper appears in the user's profile
// view: the admin dashboard shows the unfiltered catalog, a regular
// profile shows self-uploaded entries only.
func Visible(user backend.User, wallpaper backend.Wallpaper) bool {
	return user.IsAdmin || user.ID == wallpaper.UploaderID
}

// VisibleSlice filters a catalog snapshot down to the entries Visible to
// the user, preserving order. The input slice is never modified.
func VisibleSlice(user backend.User, wallpapers []backend.Wallpaper) []backend.Wallpaper {
	if user.IsAdmin {
		return wallpapers
	}
	visible := make([]backend.Wallpaper, 0, len(wallpapers))
	for _, wallpaper := range wallpapers {
		if Visible(user, wallpaper) {
			visible = append(visible, wallpaper)
		}
	}
	return visible
}
