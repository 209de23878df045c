package places

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flynn-ai/tripwise/internal/errors"
	"github.com/flynn-ai/tripwise/internal/travel"
)

var fastOpts = travel.Options{Timeout: time.Second}

type fakeBackend struct {
	name       string
	configured bool
	text       string
	err        error
	calls      int
}

func (f *fakeBackend) Name() string     { return f.name }
func (f *fakeBackend) Configured() bool { return f.configured }
func (f *fakeBackend) Search(ctx context.Context, place string, category Category) (string, error) {
	f.calls++
	return f.text, f.err
}

func TestFinder(t *testing.T) {
	t.Run("first success wins", func(t *testing.T) {
		a := &fakeBackend{name: "a", configured: true, err: errors.Temporary(errors.CodePlacesLookupFailed, "down")}
		b := &fakeBackend{name: "b", configured: true, text: "Louvre"}
		c := &fakeBackend{name: "c", configured: true, text: "never"}

		res, err := NewFinder(nil, a, b, c).Search(context.Background(), "Paris", Attractions)
		require.NoError(t, err)
		assert.Equal(t, "b", res.Backend)
		assert.Equal(t, "Louvre", res.Text)
		assert.Equal(t, 0, c.calls)
	})

	t.Run("unconfigured backends are skipped", func(t *testing.T) {
		a := &fakeBackend{name: "a"}
		b := &fakeBackend{name: "b", configured: true, text: "Tram 28"}
		f := NewFinder(nil, a, b)

		res, err := f.Search(context.Background(), "Lisbon", Transportation)
		require.NoError(t, err)
		assert.Equal(t, "b", res.Backend)
		assert.Equal(t, 0, a.calls)
		assert.Equal(t, []string{"b"}, f.Backends())
	})

	t.Run("empty answers fall through", func(t *testing.T) {
		a := &fakeBackend{name: "a", configured: true, text: "  "}
		b := &fakeBackend{name: "b", configured: true, text: "Tapas bars"}
		res, err := NewFinder(nil, a, b).Search(context.Background(), "Seville", Restaurants)
		require.NoError(t, err)
		assert.Equal(t, "Tapas bars", res.Text)
	})

	t.Run("all failing", func(t *testing.T) {
		a := &fakeBackend{name: "a", configured: true, err: fmt.Errorf("connection refused")}
		_, err := NewFinder(nil, a).Search(context.Background(), "Rome", Activities)
		require.Error(t, err)
		assert.Equal(t, errors.CodePlacesLookupFailed, errors.GetCode(err))

		text := FallbackText(Activities, "Rome", err)
		assert.True(t, strings.HasPrefix(text, "Unable to search for activities in Rome - service error: "))
		assert.Contains(t, text, "connection refused")
		assert.True(t, strings.HasSuffix(text, "Please visit local tourism websites for information."))
	})

	t.Run("nothing configured", func(t *testing.T) {
		_, err := NewFinder(nil, &fakeBackend{name: "a"}).Search(context.Background(), "Oslo", Attractions)
		require.ErrorIs(t, err, ErrNotConfigured)
		assert.Equal(t,
			"Unable to search for attractions in Oslo - API service unavailable. Please visit local tourism websites for information.",
			FallbackText(Attractions, "Oslo", err))
	})

	t.Run("blank place", func(t *testing.T) {
		_, err := NewFinder(nil).Search(context.Background(), " ", Attractions)
		assert.Equal(t, errors.CategoryUser, errors.GetCategory(err))
	})
}

func TestGoogle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "gkey", r.URL.Query().Get("key"))
		assert.Equal(t, "top attractive places in and around Paris", r.URL.Query().Get("query"))
		_, _ = w.Write([]byte(`{"status": "OK", "results": [
			{"name": "Louvre Museum", "formatted_address": "Rue de Rivoli, 75001 Paris", "rating": 4.7, "user_ratings_total": 300000},
			{"name": "Eiffel Tower", "formatted_address": "Champ de Mars"}
		]}`))
	}))
	defer srv.Close()

	g := NewGoogle("gkey", srv.URL, fastOpts)
	text, err := g.Search(context.Background(), "Paris", Attractions)
	require.NoError(t, err)
	assert.Contains(t, text, "1. Louvre Museum")
	assert.Contains(t, text, "Rating: 4.7 (300000 reviews)")
	assert.Contains(t, text, "2. Eiffel Tower")

	t.Run("request denied", func(t *testing.T) {
		denied := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"status": "REQUEST_DENIED", "error_message": "key invalid"}`))
		}))
		defer denied.Close()

		_, err := NewGoogle("bad", denied.URL, fastOpts).Search(context.Background(), "Paris", Attractions)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "REQUEST_DENIED: key invalid")
	})

	assert.False(t, NewGoogle("", "", fastOpts).Configured())
}

func TestTavily(t *testing.T) {
	var got tavilyRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer tkey", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"answer": "Try the Alfama food tour.", "results": []}`))
	}))
	defer srv.Close()

	text, err := NewTavily("tkey", srv.URL, fastOpts).Search(context.Background(), "Lisbon", Restaurants)
	require.NoError(t, err)
	assert.Equal(t, "Try the Alfama food tour.", text)
	assert.Equal(t, "general", got.Topic)
	assert.Equal(t, "advanced", got.IncludeAnswer)
	assert.Contains(t, got.Query, "restaurants and eateries in and around Lisbon")

	t.Run("results when no answer", func(t *testing.T) {
		noAnswer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"results": [{"title": "Metro", "url": "https://metro.example", "content": "Four lines."}]}`))
		}))
		defer noAnswer.Close()

		text, err := NewTavily("tkey", noAnswer.URL, fastOpts).Search(context.Background(), "Lisbon", Transportation)
		require.NoError(t, err)
		assert.Equal(t, "- Metro: Four lines. (https://metro.example)", text)
	})

	assert.False(t, NewTavily("your_tavily_api_key_here", "", fastOpts).Configured())
}

const modernArticle = `<html><head><meta charset="utf-8"></head><body><div id="mw-content-text">
<p>Intro text.</p>
<div class="mw-heading mw-heading2"><h2 id="Get_around">Get around</h2><span class="mw-editsection">edit</span></div>
<p>The <b>metro</b> covers the city.</p>
<div class="mw-heading mw-heading3"><h3 id="By_bike">By bike</h3></div>
<ul><li>Vélib' bike share</li></ul>
<div class="mw-heading mw-heading2"><h2 id="See">See</h2></div>
<p>Museums everywhere.</p>
</div></body></html>`

const legacyArticle = `<html><body>
<h2><span class="mw-headline" id="Eat">Eat</span></h2>
<p>Try the <i>pastéis de nata</i>.</p>
<h2><span class="mw-headline" id="Drink">Drink</span></h2>
<p>Ginjinha.</p>
</body></html>`

func TestWikivoyage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		switch r.URL.Path {
		case "/Paris":
			_, _ = w.Write([]byte(modernArticle))
		case "/Lisbon":
			_, _ = w.Write([]byte(legacyArticle))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	wv := NewWikivoyage(srv.URL, fastOpts)

	t.Run("modern markup", func(t *testing.T) {
		text, err := wv.Search(context.Background(), "paris", Transportation)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(text, "## Get around"))
		assert.Contains(t, text, "**metro**")
		assert.Contains(t, text, "bike share")
		assert.NotContains(t, text, "Museums everywhere")
		assert.NotContains(t, text, "edit")
	})

	t.Run("legacy markup", func(t *testing.T) {
		text, err := wv.Search(context.Background(), "Lisbon", Restaurants)
		require.NoError(t, err)
		assert.Contains(t, text, "pastéis de nata")
		assert.NotContains(t, text, "Ginjinha")
	})

	t.Run("missing section is empty", func(t *testing.T) {
		text, err := wv.Search(context.Background(), "Lisbon", Activities)
		require.NoError(t, err)
		assert.Empty(t, text)
	})

	t.Run("missing article", func(t *testing.T) {
		_, err := wv.Search(context.Background(), "Atlantis", Attractions)
		require.Error(t, err)
		assert.Equal(t, errors.CategoryPermanent, errors.GetCategory(err))
	})

	t.Run("missing articles keep the breaker closed", func(t *testing.T) {
		for _, place := range []string{"Paris, France", "Atlantis", "Eldorado", "Lemuria", "Mordor", "Narnia"} {
			_, err := wv.Search(context.Background(), place, Attractions)
			require.Error(t, err)
		}
		text, err := wv.Search(context.Background(), "Paris", Transportation)
		require.NoError(t, err)
		assert.NotEmpty(t, text)
	})
}

func TestArticleTitle(t *testing.T) {
	assert.Equal(t, "New_York_City", ArticleTitle("new york  city"))
	assert.Equal(t, "Édimbourg", ArticleTitle("édimbourg"))
}

func TestTruncate(t *testing.T) {
	s := strings.Repeat("line of text\n", 400)
	out := truncate(s, wikivoyageMaxChars)
	assert.LessOrEqual(t, len(out), wikivoyageMaxChars+4)
	assert.True(t, strings.HasSuffix(out, "\n..."))
	assert.Equal(t, "short", truncate("short", 10))
}
