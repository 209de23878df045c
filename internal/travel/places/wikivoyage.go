package places

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"

	"github.com/flynn-ai/tripwise/internal/errors"
	"github.com/flynn-ai/tripwise/internal/travel"
)

// DefaultWikivoyageURL is the English Wikivoyage article root.
const DefaultWikivoyageURL = "https://en.wikivoyage.org/wiki"

// wikivoyageMaxChars bounds the section text handed to the model.
const wikivoyageMaxChars = 2500

// Wikivoyage scrapes the matching section of the destination's Wikivoyage
// article. It needs no key and is the last resort of the chain.
type Wikivoyage struct {
	baseURL   string
	upstream  *travel.Upstream
	converter *md.Converter
}

// NewWikivoyage creates the Wikivoyage backend.
func NewWikivoyage(baseURL string, opts travel.Options) *Wikivoyage {
	if baseURL == "" {
		baseURL = DefaultWikivoyageURL
	}
	return &Wikivoyage{
		baseURL:   strings.TrimRight(baseURL, "/"),
		upstream:  travel.NewUpstream("wikivoyage", errors.CodePlacesLookupFailed, opts),
		converter: md.NewConverter("", true, nil),
	}
}

func (w *Wikivoyage) Name() string     { return "wikivoyage" }
func (w *Wikivoyage) Configured() bool { return true }

// Search implements Backend.
func (w *Wikivoyage) Search(ctx context.Context, place string, category Category) (string, error) {
	section := category.Section()
	if section == "" {
		return "", errors.User(errors.CodeInvalidInput, "unknown category "+string(category))
	}

	page := w.baseURL + "/" + url.PathEscape(ArticleTitle(place))
	resp, err := w.upstream.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, page, nil)
	})
	if err != nil {
		return "", err
	}

	body, err := charset.NewReader(bytes.NewReader(resp.Body), resp.ContentType)
	if err != nil {
		return "", errors.Wrap(err, errors.CodePlacesLookupFailed, "unsupported page encoding", errors.CategoryPermanent)
	}
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return "", errors.Wrap(err, errors.CodePlacesLookupFailed, "failed to parse wikivoyage page", errors.CategoryPermanent)
	}

	content := sectionContent(doc, strings.ReplaceAll(section, " ", "_"))
	if content == nil || content.Length() == 0 {
		return "", nil
	}
	content.Find("style, script, sup.reference, span.mw-editsection, .noprint").Remove()

	var html strings.Builder
	content.Each(func(_ int, s *goquery.Selection) {
		if h, err := goquery.OuterHtml(s); err == nil {
			html.WriteString(h)
		}
	})

	text, err := w.converter.ConvertString(html.String())
	if err != nil {
		return "", errors.Wrap(err, errors.CodePlacesLookupFailed, "failed to convert wikivoyage section", errors.CategoryPermanent)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}

	return "## " + section + " (Wikivoyage: " + page + ")\n\n" + truncate(text, wikivoyageMaxChars), nil
}

// sectionContent returns the nodes between the level-2 heading with the given
// id and the next level-2 heading. Both the current markup, where headings sit
// in a div.mw-heading wrapper, and the older span.mw-headline markup are handled.
func sectionContent(doc *goquery.Document, id string) *goquery.Selection {
	heading := doc.Find("h2#" + id).First()
	if heading.Length() == 0 {
		heading = doc.Find("span.mw-headline#" + id).First().Closest("h2")
	}
	if heading.Length() == 0 {
		return nil
	}

	start := heading
	if parent := heading.Parent(); parent.HasClass("mw-heading") {
		start = parent
	}
	return start.NextUntil("h2, div.mw-heading2")
}

// ArticleTitle turns a place name into a Wikivoyage article title.
func ArticleTitle(place string) string {
	words := strings.Fields(place)
	for i, word := range words {
		r, size := utf8.DecodeRuneInString(word)
		words[i] = string(unicode.ToUpper(r)) + word[size:]
	}
	return strings.Join(words, "_")
}

// truncate cuts s to at most limit bytes, preferring a line break.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := s[:limit]
	if i := strings.LastIndex(cut, "\n"); i > limit/2 {
		cut = cut[:i]
	} else {
		for !utf8.ValidString(cut) {
			cut = cut[:len(cut)-1]
		}
	}
	return strings.TrimSpace(cut) + "\n..."
}
