package handlers

import (
	"context"
	"io"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/schema"

	"github.com/plumehq/plume/internal/httperr"
	"github.com/plumehq/plume/internal/types"
	"github.com/plumehq/plume/posts/models"
	"github.com/plumehq/plume/posts/services"
)

// PostHandler handles post lifecycle HTTP requests
type PostHandler struct {
	postService services.PostService
}

// NewPostHandler creates a new PostHandler with injected dependencies
func NewPostHandler(postService services.PostService) *PostHandler {
	return &PostHandler{postService: postService}
}

func currentUser(c *fiber.Ctx) (*types.UserContext, error) {
	user, ok := c.Locals(types.UserCtxName).(types.UserContext)
	if !ok {
		return nil, httperr.BadRequest("missing user context")
	}
	return &user, nil
}

// CreatePost handles POST /v1/create_post. An empty body (or empty JSON
// object) yields the caller's unpublished slot.
func (h *PostHandler) CreatePost(c *fiber.Ctx) error {
	var req models.CreateRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return httperr.Handle(c, httperr.BadRequest("invalid request body"))
		}
	}

	user, err := currentUser(c)
	if err != nil {
		return httperr.Handle(c, err)
	}

	id, err := h.postService.CreatePost(c.UserContext(), user, &req)
	if err != nil {
		return httperr.Handle(c, err)
	}

	return c.JSON(fiber.Map{"post_id": id})
}

// UploadImage handles POST /v1/upload_image. The body is multipart with a
// `file` part, a `post_id` value, and an optional `web_resize` long-side
// budget. Missing or malformed parts come back as a 422 with one detail
// entry per offending field.
func (h *PostHandler) UploadImage(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return httperr.Handle(c, err)
	}

	params, details := parseUploadForm(c)
	if len(details) > 0 {
		return httperr.Handle(c, httperr.Unprocessable(details))
	}

	resp, err := h.postService.UploadImage(c.UserContext(), user, params)
	if err != nil {
		return httperr.Handle(c, err)
	}

	return c.JSON(resp)
}

// uploadForm is the non-file half of the upload_image multipart body.
type uploadForm struct {
	PostID    string `schema:"post_id"`
	WebResize int    `schema:"web_resize"`
}

var formDecoder = func() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}()

func parseUploadForm(c *fiber.Ctx) (*services.UploadParams, []httperr.ValidationDetail) {
	var details []httperr.ValidationDetail
	params := &services.UploadParams{}

	var form uploadForm
	if mp, err := c.MultipartForm(); err == nil {
		if err := formDecoder.Decode(&form, mp.Value); err != nil {
			details = append(details, httperr.ValidationDetail{
				Loc: []string{"body", "web_resize"}, Msg: "must be a positive integer", Type: "type_error.integer",
			})
		}
	}

	params.PostID = form.PostID
	if params.PostID == "" {
		details = append(details, httperr.ValidationDetail{
			Loc: []string{"body", "post_id"}, Msg: "field required", Type: "value_error.missing",
		})
	}

	if form.WebResize < 0 {
		details = append(details, httperr.ValidationDetail{
			Loc: []string{"body", "web_resize"}, Msg: "must be a positive integer", Type: "type_error.integer",
		})
	}
	params.WebResize = form.WebResize

	header, err := c.FormFile("file")
	if err != nil {
		details = append(details, httperr.ValidationDetail{
			Loc: []string{"body", "file"}, Msg: "field required", Type: "value_error.missing",
		})
		return params, details
	}
	params.Filename = header.Filename

	file, err := header.Open()
	if err != nil {
		details = append(details, httperr.ValidationDetail{
			Loc: []string{"body", "file"}, Msg: "unreadable file part", Type: "value_error",
		})
		return params, details
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		details = append(details, httperr.ValidationDetail{
			Loc: []string{"body", "file"}, Msg: "unreadable file part", Type: "value_error",
		})
		return params, details
	}
	params.Data = data
	return params, details
}

// UpdatePost handles POST /v1/update_post.
func (h *PostHandler) UpdatePost(c *fiber.Ctx) error {
	var req models.UpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return httperr.Handle(c, httperr.BadRequest("invalid request body"))
	}

	user, err := currentUser(c)
	if err != nil {
		return httperr.Handle(c, err)
	}

	if err := h.postService.UpdatePost(c.UserContext(), user, &req); err != nil {
		return httperr.Handle(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// UpdatePrivacy handles POST /v1/update_privacy.
func (h *PostHandler) UpdatePrivacy(c *fiber.Ctx) error {
	var req models.PrivacyRequest
	if err := c.BodyParser(&req); err != nil {
		return httperr.Handle(c, httperr.BadRequest("invalid request body"))
	}

	user, err := currentUser(c)
	if err != nil {
		return httperr.Handle(c, err)
	}

	if err := h.postService.UpdatePrivacy(c.UserContext(), user, &req); err != nil {
		return httperr.Handle(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// SetIcon handles POST /v1/set_icon.
func (h *PostHandler) SetIcon(c *fiber.Ctx) error {
	return h.setRendition(c, h.postService.SetIcon)
}

// SetBanner handles POST /v1/set_banner.
func (h *PostHandler) SetBanner(c *fiber.Ctx) error {
	return h.setRendition(c, h.postService.SetBanner)
}

func (h *PostHandler) setRendition(c *fiber.Ctx, apply func(ctx context.Context, user *types.UserContext, req *models.IconRequest) error) error {
	var req models.IconRequest
	if err := c.BodyParser(&req); err != nil {
		return httperr.Handle(c, httperr.BadRequest("invalid request body"))
	}

	user, err := currentUser(c)
	if err != nil {
		return httperr.Handle(c, err)
	}

	if err := apply(c.UserContext(), user, &req); err != nil {
		return httperr.Handle(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Help handles GET /v1/help: a self-documenting map of every route and its
// body shape, mirroring what the service accepts.
func (h *PostHandler) Help(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"/v1/create_post": fiber.Map{
			"method": "POST",
			"body":   "{reply_to?, title?, description?, rating?, privacy?}; empty body returns your unpublished slot",
		},
		"/v1/upload_image": fiber.Map{
			"method": "POST",
			"body":   "multipart: file, post_id, web_resize?",
		},
		"/v1/update_post": fiber.Map{
			"method": "POST",
			"body":   "{post_id, title?, description?, rating?, privacy?}; empty string clears title/description",
		},
		"/v1/update_privacy": fiber.Map{
			"method": "POST",
			"body":   "{post_id, privacy}; privacy: public|unlisted|private|draft",
		},
		"/v1/set_icon": fiber.Map{
			"method": "POST",
			"body":   "{post_id, coordinates: {top, left, width, height}}; square crop",
		},
		"/v1/set_banner": fiber.Map{
			"method": "POST",
			"body":   "{post_id, coordinates: {top, left, width, height}}; 3:1 crop",
		},
		"/v1/vote": fiber.Map{
			"method": "POST",
			"body":   "{post_id, vote: true|false|null}",
		},
		"/v1/score/:post_id": fiber.Map{
			"method": "GET",
		},
	})
}
