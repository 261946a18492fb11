package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plumehq/plume/internal/httperr"
	"github.com/plumehq/plume/internal/types"
	"github.com/plumehq/plume/votes/models"
)

type stubVoteService struct {
	req     *models.VoteRequest
	scoreID string
	score   *models.Score
	err     error
}

func (s *stubVoteService) Vote(ctx context.Context, user *types.UserContext, req *models.VoteRequest) (*models.Score, error) {
	s.req = req
	return s.score, s.err
}

func (s *stubVoteService) Score(ctx context.Context, postID string) (*models.Score, error) {
	s.scoreID = postID
	return s.score, s.err
}

func newVoteApp(svc *stubVoteService) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: httperr.ErrorHandler})
	auth := func(c *fiber.Ctx) error {
		c.Locals(types.UserCtxName, types.UserContext{UserID: 7, Handle: "alice"})
		return c.Next()
	}
	handler := NewVoteHandler(svc)
	app.Post("/v1/vote", auth, handler.Vote)
	app.Get("/v1/score/:post_id", auth, handler.Score)
	return app
}

func postVote(t *testing.T, app *fiber.App, body string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/vote", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func TestVote_ReturnsScore(t *testing.T) {
	svc := &stubVoteService{score: &models.Score{PostID: 1, Up: 3, Down: 1, Top: 2}}
	app := newVoteApp(svc)

	resp := postVote(t, app, `{"post_id":"AAAAAAAB","vote":true}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var score models.Score
	require.NoError(t, json.Unmarshal(data, &score))
	assert.Equal(t, int64(3), score.Up)
	assert.Equal(t, int64(2), score.Top)

	require.NotNil(t, svc.req)
	assert.Equal(t, "AAAAAAAB", svc.req.PostID)
	assert.Equal(t, json.RawMessage("true"), svc.req.Vote)
}

func TestVote_NullReachesService(t *testing.T) {
	svc := &stubVoteService{score: &models.Score{PostID: 1}}
	app := newVoteApp(svc)

	resp := postVote(t, app, `{"post_id":"AAAAAAAB","vote":null}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NotNil(t, svc.req)
	assert.Equal(t, json.RawMessage("null"), svc.req.Vote)
}

func TestVote_ServiceErrorMapsToStatus(t *testing.T) {
	svc := &stubVoteService{err: httperr.NotFound("post not found")}
	app := newVoteApp(svc)

	resp := postVote(t, app, `{"post_id":"AAAAAAAB","vote":true}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestScore_ReturnsScore(t *testing.T) {
	svc := &stubVoteService{score: &models.Score{PostID: 1, Up: 4, Down: 1, Top: 3}}
	app := newVoteApp(svc)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/v1/score/AAAAAAAB", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "AAAAAAAB", svc.scoreID)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var score models.Score
	require.NoError(t, json.Unmarshal(data, &score))
	assert.Equal(t, int64(4), score.Up)
	assert.Equal(t, int64(3), score.Top)
}

func TestScore_ServiceErrorMapsToStatus(t *testing.T) {
	svc := &stubVoteService{err: httperr.NotFound("post has no score")}
	app := newVoteApp(svc)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/v1/score/AAAAAAAB", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestVote_MalformedBody(t *testing.T) {
	app := newVoteApp(&stubVoteService{})

	resp := postVote(t, app, `{"post_id":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
