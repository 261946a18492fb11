package images

import (
	"path/filepath"
	"strings"
)

// FileType is a known raster format. The ids mirror the media_types table
// seed in the schema.
type FileType struct {
	MediaTypeID int
	Name        string
	Mime        string
}

// extensionTypes is the fixed extension → MIME table. The extension implied
// by the client filename must agree with the sniffed MIME of the bytes.
var extensionTypes = map[string]FileType{
	"jpg":  {MediaTypeID: 1, Name: "jpeg", Mime: "image/jpeg"},
	"jpeg": {MediaTypeID: 1, Name: "jpeg", Mime: "image/jpeg"},
	"png":  {MediaTypeID: 2, Name: "png", Mime: "image/png"},
	"webp": {MediaTypeID: 3, Name: "webp", Mime: "image/webp"},
	"gif":  {MediaTypeID: 4, Name: "gif", Mime: "image/gif"},
}

// typeForFilename resolves the file type implied by a client filename.
func typeForFilename(filename string) (FileType, bool) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	ft, ok := extensionTypes[ext]
	return ft, ok
}

// webInfix renames photo.png → photo-web.png. Applied when a web resize
// was requested.
func webInfix(filename string) string {
	ext := filepath.Ext(filename)
	return strings.TrimSuffix(filename, ext) + "-web" + ext
}
