package app

import (
	"strings"

	"github.com/snehith2024/Wallify/internal/backend"
)

// CategoryAll is the filter value matching every category; it is never a
// stored category.
const CategoryAll = "All"

// Categories is the fixed category set offered by the gallery, with the
// all-matching filter value first.
var Categories = []string{
	CategoryAll,
	"Nature",
	"Abstract",
	"Animals",
	"Architecture",
	"Space",
	"Technology",
	"Minimal",
}

// DefaultUploadCategory preselects the upload form.
const DefaultUploadCategory = "Nature"

// ValidCategory reports whether the value is a storable category.
func ValidCategory(value string) bool {
	for _, category := range Categories {
		if category != CategoryAll && category == value {
			return true
		}
	}
	return false
}

// Filter captures the home view's search state.
type Filter struct {
	Category string
	Search   string
}

// Matches reports whether the wallpaper passes the filter. The search term
// matches the name or any tag, case-insensitively; an empty term matches
// everything, as does category All.
func (f Filter) Matches(wallpaper backend.Wallpaper) bool {
	if f.Category != "" && f.Category != CategoryAll && wallpaper.Category != f.Category {
		return false
	}
	term := strings.ToLower(strings.TrimSpace(f.Search))
	if term == "" {
		return true
	}
	if strings.Contains(strings.ToLower(wallpaper.Name), term) {
		return true
	}
	for _, tag := range wallpaper.Tags {
		if strings.Contains(strings.ToLower(tag), term) {
			return true
		}
	}
	return false
}

// Apply filters a snapshot, preserving order. The input is not modified.
func (f Filter) Apply(wallpapers []backend.Wallpaper) []backend.Wallpaper {
	filtered := make([]backend.Wallpaper, 0, len(wallpapers))
	for _, wallpaper := range wallpapers {
		if f.Matches(wallpaper) {
			filtered = append(filtered, wallpaper)
		}
	}
	return filtered
}
