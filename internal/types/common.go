package types

// HTTP Header Constants
const (
	HeaderAuthorization = "Authorization"
	HeaderContentType   = "Content-Type"
	HeaderRequestID     = "X-Request-ID"
)

// Authentication Constants
const (
	BearerPrefix = "Bearer "

	// UserCtxName is the fiber.Ctx Locals key holding the authenticated user.
	UserCtxName = "user"
)

// UserContext is the authenticated caller extracted from the bearer token.
// Only the fields the upload service needs are carried; everything else
// about the user lives in the user service.
type UserContext struct {
	UserID      int64  `json:"user_id"`
	Handle      string `json:"handle"`
	DisplayName string `json:"display_name"`
}

// Coordinates describes a crop rectangle in source-image pixels.
type Coordinates struct {
	Top    int `json:"top"`
	Left   int `json:"left"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// TagGroups maps a tag classification group to the tags a post carries in it.
type TagGroups map[string][]string

// Flatten returns every tag across all groups.
func (g TagGroups) Flatten() []string {
	tags := make([]string, 0, len(g)*4)
	for _, group := range g {
		tags = append(tags, group...)
	}
	return tags
}

// User is the projection of a user record served by the user service. Icon
// and banner are post ids in their external string form.
type User struct {
	UserID      int64   `json:"user_id"`
	Handle      string  `json:"handle"`
	DisplayName string  `json:"display_name"`
	Icon        *string `json:"icon"`
	Banner      *string `json:"banner"`
}
