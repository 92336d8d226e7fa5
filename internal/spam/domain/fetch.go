package domain

// FetchResult is what the fetch collaborator reports for one GET.
type FetchResult struct {
	// URL is the link that was requested.
	URL string
	// FinalURL is the redirect target when Redirected, otherwise URL.
	FinalURL string
	// Redirected is true for a 3xx response carrying a Location.
	Redirected bool
	// StatusCode of the response.
	StatusCode int
	// Body is the response body decoded to UTF-8 text.
	Body string
}
