package common

const (
	// AuthorizationHeaderName carries "Bearer <token>" on protected requests.
	AuthorizationHeaderName = "Authorization"
	BearerPrefix            = "Bearer "

	// RequestIDHeaderName is echoed back on every response.
	RequestIDHeaderName = "X-Request-ID"

	// PlaceholderImagePath is served from the assets directory and shared by
	// every story without its own image.
	PlaceholderImagePath = "/assets/placeholder.png"
)
