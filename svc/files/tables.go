package files

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Extension categories used to pick stock thumbnails.
const (
	CategoryImage   = "image"
	CategoryMusic   = "music"
	CategoryVideo   = "video"
	CategoryOffice  = "office"
	CategoryGeneric = "generic"
)

// List type filters accepted by List.
const (
	TypeMedia = "media"
	TypeDocs  = "docs"
)

// Size is a thumbnail dimension pair.
type Size struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// Tables is the classification data injected into the Service: extension
// groups for list filters, thumbnail support, stock images and the allowed
// thumbnail dimensions. Extensions are lower-case without the dot.
type Tables struct {
	Media []string `yaml:"media"`
	Docs  []string `yaml:"docs"`

	// Thumbnail lists every extension thumb() does not answer with a stock
	// image straight away. Extensions also in Inline still get stock images,
	// but only after the side-car lookup.
	Thumbnail []string `yaml:"thumbnail"`
	Inline    []string `yaml:"inline_excluded"`

	Categories  map[string][]string `yaml:"categories"`
	StockImages map[string]string   `yaml:"stock_images"`
	ThumbSizes  []Size              `yaml:"thumb_sizes"`
}

// DefaultTables returns the built-in classification tables.
func DefaultTables() Tables {
	return Tables{
		Media: []string{
			"jpg", "jpeg", "png", "gif", "bmp", "webp", "tif", "tiff", "heic", "svg",
			"mp3", "wav", "ogg", "flac", "m4a", "aac",
			"mp4", "mov", "avi", "mkv", "webm", "m4v",
		},
		Docs: []string{
			"pdf", "doc", "docx", "xls", "xlsx", "ppt", "pptx",
			"odt", "ods", "odp", "rtf", "txt", "md", "csv",
		},
		Thumbnail: []string{
			"jpg", "jpeg", "png", "gif", "bmp", "tif", "tiff", "webp",
			"pdf", "doc", "docx", "ppt", "pptx", "mp4", "mov", "m4v",
		},
		Inline: []string{"pdf", "doc", "docx", "ppt", "pptx", "mp4", "mov", "m4v"},
		Categories: map[string][]string{
			CategoryImage:  {"jpg", "jpeg", "png", "gif", "bmp", "webp", "tif", "tiff", "heic", "svg"},
			CategoryMusic:  {"mp3", "wav", "ogg", "flac", "m4a", "aac"},
			CategoryVideo:  {"mp4", "mov", "avi", "mkv", "webm", "m4v"},
			CategoryOffice: {"pdf", "doc", "docx", "xls", "xlsx", "ppt", "pptx", "odt", "ods", "odp", "rtf"},
		},
		StockImages: map[string]string{
			CategoryImage:   "image.png",
			CategoryMusic:   "music.png",
			CategoryVideo:   "video.png",
			CategoryOffice:  "office.png",
			CategoryGeneric: "generic.png",
		},
		ThumbSizes: []Size{
			{Width: 32, Height: 32},
			{Width: 64, Height: 64},
			{Width: 128, Height: 128},
			{Width: 256, Height: 256},
			{Width: 512, Height: 512},
			{Width: 150, Height: 100},
			{Width: 300, Height: 200},
		},
	}
}

// LoadTables decodes YAML on top of DefaultTables. Lists present in the
// document replace the defaults, maps are merged key by key.
func LoadTables(r io.Reader) (Tables, error) {
	t := DefaultTables()
	if err := yaml.NewDecoder(r).Decode(&t); err != nil && !errors.Is(err, io.EOF) {
		return Tables{}, errors.Join(ErrInvalidTables, err)
	}
	t.normalize()
	if err := t.Validate(); err != nil {
		return Tables{}, err
	}
	return t, nil
}

// Validate checks the invariants the Service relies on.
func (t Tables) Validate() error {
	if t.StockImages[CategoryGeneric] == "" {
		return fmt.Errorf("%w: missing %q stock image", ErrInvalidTables, CategoryGeneric)
	}
	if len(t.ThumbSizes) == 0 {
		return fmt.Errorf("%w: empty thumbnail size list", ErrInvalidTables)
	}
	for _, s := range t.ThumbSizes {
		if s.Width <= 0 || s.Height <= 0 {
			return fmt.Errorf("%w: bad thumbnail size %dx%d", ErrInvalidTables, s.Width, s.Height)
		}
	}
	return nil
}

func (t *Tables) normalize() {
	lower := func(exts []string) []string {
		out := make([]string, 0, len(exts))
		for _, e := range exts {
			out = append(out, strings.ToLower(strings.TrimPrefix(e, ".")))
		}
		return out
	}
	t.Media = lower(t.Media)
	t.Docs = lower(t.Docs)
	t.Thumbnail = lower(t.Thumbnail)
	t.Inline = lower(t.Inline)
	for k, v := range t.Categories {
		t.Categories[k] = lower(v)
	}
}

// TypeFilter returns the extension allow-list for a list type filter.
func (t Tables) TypeFilter(typ string) ([]string, error) {
	switch typ {
	case "":
		return nil, nil
	case TypeMedia:
		return t.Media, nil
	case TypeDocs:
		return t.Docs, nil
	default:
		return nil, fmt.Errorf("%w: unknown type filter %q", ErrInvalidArgument, typ)
	}
}

// Category returns the stock-image category of ext.
func (t Tables) Category(ext string) string {
	for _, c := range []string{CategoryImage, CategoryMusic, CategoryVideo, CategoryOffice} {
		if slices.Contains(t.Categories[c], ext) {
			return c
		}
	}
	for c, exts := range t.Categories {
		if slices.Contains(exts, ext) {
			return c
		}
	}
	return CategoryGeneric
}

// Stock returns the stock thumbnail for ext.
func (t Tables) Stock(ext string) StockImage {
	c := t.Category(ext)
	name, ok := t.StockImages[c]
	if !ok {
		c, name = CategoryGeneric, t.StockImages[CategoryGeneric]
	}
	return StockImage{Category: c, Name: name}
}

// Thumbnailable reports whether ext is in the supported-thumbnail set.
func (t Tables) Thumbnailable(ext string) bool { return slices.Contains(t.Thumbnail, ext) }

// InlineExcluded reports whether ext is a document or video format that is
// never rendered here.
func (t Tables) InlineExcluded(ext string) bool { return slices.Contains(t.Inline, ext) }

// SizeAllowed reports whether w x h is an allowed thumbnail dimension.
func (t Tables) SizeAllowed(w, h int) bool {
	return slices.Contains(t.ThumbSizes, Size{Width: w, Height: h})
}

// StockImage names a bundled fallback thumbnail.
type StockImage struct {
	Category string
	Name     string
}
