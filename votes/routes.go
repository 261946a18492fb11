package votes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/plumehq/plume/votes/handlers"
)

// RegisterRoutes mounts the vote routes under /v1 behind the provided auth
// middleware.
func RegisterRoutes(app *fiber.App, handler *handlers.VoteHandler, auth fiber.Handler) {
	group := app.Group("/v1", auth)
	group.Post("/vote", handler.Vote)
	group.Get("/score/:post_id", handler.Score)
}
