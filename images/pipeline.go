// Package images is the rendition pipeline: it validates uploaded bytes,
// strips embedded metadata, applies the optional web resize, and produces
// the size-bounded rendition set for the object store.
package images

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/gofrs/uuid"

	"github.com/plumehq/plume/internal/httperr"
	"github.com/plumehq/plume/internal/pkg/log"
	platformconfig "github.com/plumehq/plume/internal/platform/config"
	"github.com/plumehq/plume/storage/provider"
)

// Pipeline turns uploaded bytes into the stored original plus its
// renditions. Pure computation (decode, resize, encode) runs on the calling
// goroutine; only the object-store puts do I/O.
type Pipeline struct {
	cfg   platformconfig.ImagesConfig
	blobs provider.BlobProvider
}

// NewPipeline creates the pipeline. The scratch directory is created up
// front so concurrent uploads only race on filenames, which embed a UUID.
func NewPipeline(cfg platformconfig.ImagesConfig, blobs provider.BlobProvider) (*Pipeline, error) {
	if err := os.MkdirAll(cfg.ScratchDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create scratch dir %s: %w", cfg.ScratchDir, err)
	}
	return &Pipeline{cfg: cfg, blobs: blobs}, nil
}

// Prepared is a validated, stripped, possibly web-resized upload waiting
// for its rendition pass. Callers must Cleanup it on every path.
type Prepared struct {
	// Filename is the client filename, with the -web infix when a web
	// resize was requested.
	Filename string
	// Width and Height are the dimensions of the image that will be stored
	// as the original.
	Width  int
	Height int
	// Type is the resolved file type; Type.Mime matched the sniffed bytes.
	Type FileType

	img         image.Image
	scratchPath string
	quality     int
}

// Cleanup deletes the scratch file. Idempotent; called on success and
// failure alike.
func (p *Prepared) Cleanup() {
	if p.scratchPath == "" {
		return
	}
	if err := os.Remove(p.scratchPath); err != nil && !os.IsNotExist(err) {
		log.Warn("failed to remove scratch file %s: %v", p.scratchPath, err)
	}
	p.scratchPath = ""
}

// Prepare runs the local half of the pipeline: probe, scratch write,
// metadata strip, MIME agreement check, optional web resize. The scratch
// file is deleted on every failure path; on success it lives until the
// caller's Cleanup.
func (p *Pipeline) Prepare(data []byte, filename string, webResize int) (*Prepared, error) {
	// Probe before touching disk: the bytes must decode as a raster.
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return nil, httperr.BadRequest("file is not a supported image: %v", err)
	}

	scratchID, err := uuid.NewV4()
	if err != nil {
		return nil, httperr.Internal(fmt.Errorf("failed to generate scratch id: %w", err))
	}
	scratchPath := filepath.Join(p.cfg.ScratchDir, fmt.Sprintf("%s_%s", scratchID, filepath.Base(filename)))

	if err := os.WriteFile(scratchPath, data, 0o644); err != nil {
		return nil, httperr.Internal(fmt.Errorf("failed to write scratch file: %w", err))
	}

	prep := &Prepared{scratchPath: scratchPath, quality: p.cfg.Quality}

	img, ft, err := p.strip(scratchPath, data, filename)
	if err != nil {
		prep.Cleanup()
		return nil, err
	}

	if webResize > 0 {
		img = resizeLongSide(img, webResize)
		filename = webInfix(filename)
	}

	bounds := img.Bounds()
	prep.Filename = filename
	prep.Width = bounds.Dx()
	prep.Height = bounds.Dy()
	prep.Type = ft
	prep.img = img

	return prep, nil
}

// strip decodes the scratch file fully and re-encodes it in place in the
// same format, dropping EXIF/XMP/GPS payloads, and checks that the sniffed
// MIME agrees with the extension implied by the client filename.
func (p *Pipeline) strip(scratchPath string, data []byte, filename string) (image.Image, FileType, error) {
	detected := http.DetectContentType(data)

	ft, ok := typeForFilename(filename)
	if !ok {
		return nil, FileType{}, httperr.BadRequest("unsupported file extension in %q", filename)
	}
	if ft.Mime != detected {
		return nil, FileType{}, httperr.BadRequest(
			"file extension %q does not match detected type %s", filepath.Ext(filename), detected)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, FileType{}, httperr.BadRequest("failed to decode image: %v", err)
	}

	stripped, err := encodeAs(img, ft, p.cfg.Quality)
	if err != nil {
		return nil, FileType{}, httperr.Internal(fmt.Errorf("failed to strip metadata: %w", err))
	}
	if err := os.WriteFile(scratchPath, stripped, 0o644); err != nil {
		return nil, FileType{}, httperr.Internal(fmt.Errorf("failed to rewrite scratch file: %w", err))
	}

	return img, ft, nil
}

// RenditionSet lists the uploaded object-store keys of one original.
type RenditionSet struct {
	// Original is the {post_id}/{filename} key.
	Original string
	// Thumbnails maps the preset size (plus "jpeg" for the JPEG variant of
	// the largest preset) to its key.
	Thumbnails map[string]string
}

// UploadRenditions runs the remote half: the original under
// {post_id}/{filename}, a WebP per preset size under
// {post_id}/thumbnails/{size}.webp, and a JPEG at the largest preset.
func (p *Pipeline) UploadRenditions(ctx context.Context, postID string, prep *Prepared) (*RenditionSet, error) {
	set := &RenditionSet{
		Thumbnails: make(map[string]string, len(p.cfg.ThumbnailSizes)+1),
	}

	original, err := encodeAs(prep.img, prep.Type, prep.quality)
	if err != nil {
		return nil, fmt.Errorf("failed to encode original: %w", err)
	}
	set.Original = fmt.Sprintf("%s/%s", postID, prep.Filename)
	if err := p.blobs.Put(ctx, set.Original, prep.Type.Mime, original); err != nil {
		return nil, err
	}

	maxSize := 0
	for _, size := range p.cfg.ThumbnailSizes {
		if size > maxSize {
			maxSize = size
		}

		thumb := resizeLongSide(prep.img, size)
		encoded, err := encodeWebP(thumb, prep.quality)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %d thumbnail: %w", size, err)
		}

		key := fmt.Sprintf("%s/thumbnails/%d.webp", postID, size)
		if err := p.blobs.Put(ctx, key, "image/webp", encoded); err != nil {
			return nil, err
		}
		set.Thumbnails[strconv.Itoa(size)] = key
	}

	// The largest preset also gets a JPEG for clients without WebP.
	jpg, err := encodeJPEG(resizeLongSide(prep.img, maxSize), prep.quality)
	if err != nil {
		return nil, fmt.Errorf("failed to encode jpeg thumbnail: %w", err)
	}
	jpgKey := fmt.Sprintf("%s/thumbnails/%d.jpg", postID, maxSize)
	if err := p.blobs.Put(ctx, jpgKey, "image/jpeg", jpg); err != nil {
		return nil, err
	}
	set.Thumbnails["jpeg"] = jpgKey

	return set, nil
}

// resizeLongSide scales so the longer dimension fits size, flooring the
// short side, with a Catmull-Rom filter. Images already within the budget
// pass through untouched.
func resizeLongSide(img image.Image, size int) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	long := w
	if h > w {
		long = h
	}
	if size <= 0 || size >= long {
		return img
	}

	if w >= h {
		return imaging.Resize(img, size, h*size/w, imaging.CatmullRom)
	}
	return imaging.Resize(img, w*size/h, size, imaging.CatmullRom)
}

// encodeAs encodes in the stored format at the single pipeline quality.
func encodeAs(img image.Image, ft FileType, quality int) ([]byte, error) {
	if ft.Name == "webp" {
		return encodeWebP(img, quality)
	}

	var format imaging.Format
	switch ft.Name {
	case "jpeg":
		format = imaging.JPEG
	case "png":
		format = imaging.PNG
	case "gif":
		format = imaging.GIF
	default:
		return nil, fmt.Errorf("unsupported encode format %q", ft.Name)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format, imaging.JPEGQuality(quality)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeWebP(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, &webp.Options{Quality: float32(quality)}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
