package models

import (
	"fmt"
	"time"
)

// Privacy is the post visibility state.
type Privacy string

const (
	PrivacyPublic      Privacy = "public"
	PrivacyUnlisted    Privacy = "unlisted"
	PrivacyPrivate     Privacy = "private"
	PrivacyUnpublished Privacy = "unpublished"
	PrivacyDraft       Privacy = "draft"
)

var privacyIDs = map[Privacy]int{
	PrivacyPublic:      1,
	PrivacyUnlisted:    2,
	PrivacyPrivate:     3,
	PrivacyUnpublished: 4,
	PrivacyDraft:       5,
}

// ParsePrivacy validates a client-provided privacy name.
func ParsePrivacy(s string) (Privacy, error) {
	p := Privacy(s)
	if _, ok := privacyIDs[p]; !ok {
		return "", fmt.Errorf("unknown privacy %q", s)
	}
	return p, nil
}

// ID returns the privacy table row id.
func (p Privacy) ID() int {
	return privacyIDs[p]
}

// Hidden reports whether the post has never been published: unpublished and
// draft posts have no votes, no scores, and no created_on yet.
func (p Privacy) Hidden() bool {
	return p == PrivacyUnpublished || p == PrivacyDraft
}

// Rating is the content rating.
type Rating string

const (
	RatingGeneral  Rating = "general"
	RatingMature   Rating = "mature"
	RatingExplicit Rating = "explicit"
)

var ratingIDs = map[Rating]int{
	RatingGeneral:  1,
	RatingMature:   2,
	RatingExplicit: 3,
}

// ParseRating validates a client-provided rating name.
func ParseRating(s string) (Rating, error) {
	r := Rating(s)
	if _, ok := ratingIDs[r]; !ok {
		return "", fmt.Errorf("unknown rating %q", s)
	}
	return r, nil
}

// ID returns the ratings table row id.
func (r Rating) ID() int {
	return ratingIDs[r]
}

// IsRatingName reports whether s names a rating. The count cache uses this
// to classify bare counter keys.
func IsRatingName(s string) bool {
	_, ok := ratingIDs[Rating(s)]
	return ok
}

// MediaType describes the stored file format of a post's blob.
type MediaType struct {
	ID       int    `db:"media_type_id" json:"-"`
	FileType string `db:"file_type" json:"file_type"`
	Mime     string `db:"mime_type" json:"mime_type"`
}

// PostSize is the pixel dimensions of the stored original.
type PostSize struct {
	Width  int `db:"width" json:"width"`
	Height int `db:"height" json:"height"`
}

// Post is the denormalized post projection. It is what the post cache
// stores and what read paths return.
type Post struct {
	PostID      PostId     `db:"post_id" json:"post_id"`
	Uploader    int64      `db:"uploader_user_id" json:"user_id"`
	Title       *string    `db:"title" json:"title"`
	Description *string    `db:"description" json:"description"`
	Rating      Rating     `db:"rating" json:"rating"`
	Privacy     Privacy    `db:"privacy" json:"privacy"`
	Parent      *PostId    `db:"parent" json:"parent"`
	Filename    *string    `db:"filename" json:"filename"`
	MediaType   *MediaType `json:"media_type"`
	Size        *PostSize  `json:"size"`
	CreatedOn   time.Time  `db:"created_on" json:"created"`
	UpdatedOn   time.Time  `db:"updated_on" json:"updated"`
}

// PostRow is the flat scan target for the denormalized read query.
type PostRow struct {
	PostID      PostId    `db:"post_id"`
	Uploader    int64     `db:"uploader_user_id"`
	Title       *string   `db:"title"`
	Description *string   `db:"description"`
	Rating      string    `db:"rating"`
	Privacy     string    `db:"privacy"`
	Parent      *PostId   `db:"parent"`
	Filename    *string   `db:"filename"`
	MediaTypeID *int      `db:"media_type_id"`
	FileType    *string   `db:"file_type"`
	Mime        *string   `db:"mime_type"`
	Width       *int      `db:"width"`
	Height      *int      `db:"height"`
	CreatedOn   time.Time `db:"created_on"`
	UpdatedOn   time.Time `db:"updated_on"`
}

// Post folds the flat row into the projection.
func (r *PostRow) Post() *Post {
	p := &Post{
		PostID:      r.PostID,
		Uploader:    r.Uploader,
		Title:       r.Title,
		Description: r.Description,
		Rating:      Rating(r.Rating),
		Privacy:     Privacy(r.Privacy),
		Parent:      r.Parent,
		Filename:    r.Filename,
		CreatedOn:   r.CreatedOn,
		UpdatedOn:   r.UpdatedOn,
	}
	if r.MediaTypeID != nil && r.FileType != nil && r.Mime != nil {
		p.MediaType = &MediaType{ID: *r.MediaTypeID, FileType: *r.FileType, Mime: *r.Mime}
	}
	if r.Width != nil && r.Height != nil {
		p.Size = &PostSize{Width: *r.Width, Height: *r.Height}
	}
	return p
}

// Field bounds enforced on metadata writes.
const (
	MaxTitleLength       = 100
	MaxDescriptionLength = 10000
)

// CreateRequest is the body of POST /v1/create_post. All fields are
// optional: an empty request yields the caller's unpublished slot, anything
// else a populated draft.
type CreateRequest struct {
	ReplyTo     *string `json:"reply_to"`
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Rating      *string `json:"rating"`
	Privacy     *string `json:"privacy"`
}

// Empty reports whether no field at all was provided.
func (r *CreateRequest) Empty() bool {
	return r.ReplyTo == nil && r.Title == nil && r.Description == nil &&
		r.Rating == nil && r.Privacy == nil
}

// UpdateRequest is the body of POST /v1/update_post. Each optional field is
// tri-state: nil = unchanged, empty string = clear to null (title and
// description only), anything else = set.
type UpdateRequest struct {
	PostID      string  `json:"post_id"`
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Rating      *string `json:"rating"`
	Privacy     *string `json:"privacy"`
}

// PrivacyRequest is the body of POST /v1/update_privacy.
type PrivacyRequest struct {
	PostID  string `json:"post_id"`
	Privacy string `json:"privacy"`
}

// NewDraft carries the columns of a draft insert. Nil pointers are omitted
// from the column list.
type NewDraft struct {
	PostID      PostId
	Uploader    int64
	Title       *string
	Description *string
	Rating      *Rating
	Parent      *PostId
}

// PostPatch carries the dynamic column set of a metadata update. Nil means
// "leave unchanged"; for Title and Description a pointer to the empty
// string means "clear to null".
type PostPatch struct {
	Title       *string
	Description *string
	Rating      *Rating
}

// Empty reports whether the patch carries no column at all.
func (p *PostPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Rating == nil
}

// UploadResponse is the body returned by POST /v1/upload_image. Emoji is
// reserved and always null.
type UploadResponse struct {
	PostID     PostId            `json:"post_id"`
	URL        string            `json:"url"`
	Emoji      *string           `json:"emoji"`
	Thumbnails map[string]string `json:"thumbnails"`
}

// IconRequest is the body of POST /v1/set_icon and /v1/set_banner.
type IconRequest struct {
	PostID      string          `json:"post_id"`
	Coordinates CropCoordinates `json:"coordinates"`
}

// CropCoordinates is a crop rectangle in source-image pixels.
type CropCoordinates struct {
	Top    int `json:"top"`
	Left   int `json:"left"`
	Width  int `json:"width"`
	Height int `json:"height"`
}
