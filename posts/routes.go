package posts

import (
	"github.com/gofiber/fiber/v2"

	"github.com/plumehq/plume/posts/handlers"
)

// RegisterRoutes mounts the post lifecycle routes under /v1. Everything but
// the help route sits behind the provided auth middleware.
func RegisterRoutes(app *fiber.App, handler *handlers.PostHandler, auth fiber.Handler) {
	app.Get("/v1/help", handler.Help)

	group := app.Group("/v1", auth)
	group.Post("/create_post", handler.CreatePost)
	group.Post("/upload_image", handler.UploadImage)
	group.Post("/update_post", handler.UpdatePost)
	group.Post("/update_privacy", handler.UpdatePrivacy)
	group.Post("/set_icon", handler.SetIcon)
	group.Post("/set_banner", handler.SetBanner)
}
