package render

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"twarchive/pkg/models"
	"twarchive/pkg/storage"
)

// DefaultStylesheet is the file name the page links to
const DefaultStylesheet = "style.css"

//go:embed style.css
var defaultCSS []byte

var urlPattern = regexp.MustCompile(`https?://[^\s<"]+`)

// Options controls page output
type Options struct {
	Title      string
	WebBaseURL string
	Stylesheet string
}

// Renderer turns a snapshot of records into one static HTML page
type Renderer struct {
	opts   Options
	strict *bluemonday.Policy
	links  *bluemonday.Policy
	tmpl   *template.Template
}

// New creates a Renderer
func New(opts Options) *Renderer {
	if opts.Stylesheet == "" {
		opts.Stylesheet = DefaultStylesheet
	}
	if opts.Title == "" {
		opts.Title = "Archived posts"
	}
	opts.WebBaseURL = strings.TrimRight(opts.WebBaseURL, "/")

	links := bluemonday.NewPolicy()
	links.AllowElements("br")
	links.AllowAttrs("href").OnElements("a")
	links.AllowStandardURLs()
	links.RequireNoReferrerOnLinks(true)
	links.AddTargetBlankToFullyQualifiedLinks(true)

	return &Renderer{
		opts:   opts,
		strict: bluemonday.StrictPolicy(),
		links:  links,
		tmpl:   template.Must(template.New("page").Parse(pageTemplate)),
	}
}

type postView struct {
	ID            string
	Name          string
	ScreenName    string
	AvatarPath    string
	Body          template.HTML
	Pictures      []string
	ParentID      string
	ParentAuthor  string
	ShowReplyLink bool
	OriginalURL   string
}

type pageView struct {
	Title      string
	Stylesheet string
	Count      int
	Posts      []postView
}

// Render builds the page. Records appear in snapshot order. A reply links
// back to its parent only when the parent is part of the snapshot; each
// record is visited once, so reply cycles cannot loop.
func (r *Renderer) Render(snapshot []models.Record) ([]byte, error) {
	present := make(map[string]bool, len(snapshot))
	for _, rec := range snapshot {
		present[rec.ID] = true
	}

	page := pageView{
		Title:      r.opts.Title,
		Stylesheet: r.opts.Stylesheet,
		Count:      len(snapshot),
		Posts:      make([]postView, 0, len(snapshot)),
	}
	for _, rec := range snapshot {
		page.Posts = append(page.Posts, r.view(rec, present))
	}

	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, page); err != nil {
		return nil, fmt.Errorf("render page: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *Renderer) view(rec models.Record, present map[string]bool) postView {
	v := postView{
		ID:          rec.ID,
		Name:        rec.User.Name,
		ScreenName:  rec.User.ScreenName,
		AvatarPath:  rec.User.ProfileImagePath,
		Body:        r.body(rec.Text),
		Pictures:    rec.Pictures,
		OriginalURL: models.StatusURL(r.opts.WebBaseURL, rec.User.ScreenName, rec.ID),
	}
	if rec.HasParent() && present[rec.InReplyToID] {
		v.ShowReplyLink = true
		v.ParentID = rec.InReplyToID
		v.ParentAuthor = rec.InReplyToScreenName
	}
	return v
}

// body strips all markup from the post text, then turns bare URLs and line
// breaks back into the only two elements the page allows
func (r *Renderer) body(text string) template.HTML {
	escaped := r.strict.Sanitize(text)
	linked := urlPattern.ReplaceAllString(escaped, `<a href="$0">$0</a>`)
	linked = strings.ReplaceAll(linked, "\n", "<br>")
	return template.HTML(r.links.Sanitize(linked))
}

// DefaultCSS returns the embedded stylesheet
func DefaultCSS() []byte {
	return defaultCSS
}

// WriteStylesheet writes the default stylesheet into dir unless a file of
// that name already exists
func WriteStylesheet(dir, name string) (bool, error) {
	if name == "" {
		name = DefaultStylesheet
	}
	dest := filepath.Join(dir, name)
	if storage.Exists(dest) {
		return false, nil
	}
	if err := storage.WriteOnce(dest, defaultCSS); err != nil {
		return false, fmt.Errorf("write stylesheet: %w", err)
	}
	return true, nil
}

const pageTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<link rel="stylesheet" href="{{.Stylesheet}}">
<script>
function togglePic(img) {
	img.classList.toggle("expanded");
}
</script>
</head>
<body>
<h1>{{.Title}} ({{.Count}})</h1>
{{range .Posts}}<div class="tweet" id="{{.ID}}" data-tweet-id="{{.ID}}">
	<div class="left-side">
		{{if .AvatarPath}}<img class="profile_pic" src="{{.AvatarPath}}" alt="">{{end}}
		<b>{{.Name}}</b>
		<span class="screen_name">@{{.ScreenName}}</span>
	</div>
	<div class="center">
		<p class="text">{{.Body}}</p>
		{{range .Pictures}}<img class="tweet-picture" src="{{.}}" alt="" onclick="togglePic(this)">
		{{end}}
	</div>
	<div class="right-side">
		{{if .ShowReplyLink}}<a class="reply-link" href="#{{.ParentID}}">In response to {{if .ParentAuthor}}@{{.ParentAuthor}}{{else}}this post{{end}}</a>{{end}}
		<a class="original-link" href="{{.OriginalURL}}">(see original)</a>
	</div>
</div>
{{end}}</body>
</html>
`
