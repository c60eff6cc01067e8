package app

// Page enumerates the top-level view states.
type Page string

const (
	// PageLoading is the initial state, exited exactly once.
	PageLoading Page = "loading"
	// PageConnectionError is terminal; only a full restart leaves it.
	PageConnectionError Page = "connection-error"
	PageHome            Page = "home"
	PageLogin           Page = "login"
	PageProfile         Page = "profile"
	PageAdmin           Page = "admin"
)

// ContentPage reports whether the page is one of the user-navigable views.
func ContentPage(page Page) bool {
	switch page {
	case PageHome, PageLogin, PageProfile, PageAdmin:
		return true
	default:
		return false
	}
}

// RequiresSession reports whether entering the page needs an authenticated
// user.
func RequiresSession(page Page) bool {
	return page == PageProfile || page == PageAdmin
}
