package clipper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"nutriplan/internal/ghost"
	"nutriplan/internal/llm"
	"nutriplan/internal/shared"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGhost struct {
	created *ghost.Post
	err     error
}

func (f *fakeGhost) FetchPosts(context.Context, string) ([]ghost.Post, error) { return nil, nil }

func (f *fakeGhost) CreatePost(_ context.Context, title, html string, _ bool) (*ghost.Post, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = &ghost.Post{ID: "123", Title: title, HTML: html}
	return f.created, nil
}

type fakeTextGen struct {
	response string
	err      error
	prompt   string
}

func (f *fakeTextGen) GenerateContent(_ context.Context, prompt string) (llm.ContentResponse, error) {
	f.prompt = prompt
	if f.err != nil {
		return llm.ContentResponse{}, f.err
	}
	return llm.ContentResponse{Content: f.response, Usage: shared.TokenUsage{PromptTokens: 40, CompletionTokens: 20}}, nil
}

const recipePage = `<html>
<head><script>alert('bad');</script></head>
<body>
	<nav>Home | Recipes</nav>
	<h1>Tasty Soup</h1>
	<div class="ads">Buy stuff!</div>
	<p>Mix   lentils and
	water.</p>
	<script>more_bad_stuff()</script>
	<footer>Copyright 2024</footer>
</body>
</html>`

func TestCleanText(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(recipePage))
	require.NoError(t, err)

	text := CleanText(doc)
	assert.Equal(t, "Tasty Soup Mix lentils and water.", text)
}

func TestClipURL(t *testing.T) {
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(recipePage))
	}))
	defer page.Close()

	gh := &fakeGhost{}
	gen := &fakeTextGen{response: "```json\n" + `{"title":"Tasty Soup","ingredients":["200 g lentils","1 l water"],"steps":["Boil <everything>."],"prep_time":"30 mins","servings":"4"}` + "\n```"}

	res, err := NewClipper(gh, gen).ClipURL(context.Background(), page.URL)
	require.NoError(t, err)

	assert.Contains(t, gen.prompt, "Tasty Soup Mix lentils and water.")
	assert.NotContains(t, gen.prompt, "Buy stuff")
	require.NotNil(t, gh.created)
	assert.Equal(t, "Tasty Soup", res.Post.Title)
	assert.Contains(t, gh.created.HTML, "<li>200 g lentils</li>")
	assert.Contains(t, gh.created.HTML, "Boil &lt;everything&gt;.")
	assert.Equal(t, "Clipper", res.Meta.AgentName)
	assert.Equal(t, 40, res.Meta.Usage.PromptTokens)
}

func TestClipURL_Failures(t *testing.T) {
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(recipePage))
	}))
	defer page.Close()

	valid := `{"title":"Soup","ingredients":["water"],"steps":["Boil."]}`
	tests := []struct {
		name string
		path string
		gen  *fakeTextGen
		gh   *fakeGhost
		want string
	}{
		{"page not found", "/missing", &fakeTextGen{response: valid}, &fakeGhost{}, "failed to fetch content"},
		{"model error", "/", &fakeTextGen{err: errors.New("boom")}, &fakeGhost{}, "ai extraction failed"},
		{"not json", "/", &fakeTextGen{response: "I could not find a recipe"}, &fakeGhost{}, "failed to parse AI response"},
		{"no ingredients", "/", &fakeTextGen{response: `{"title":"Soup","ingredients":[]}`}, &fakeGhost{}, "no ingredients"},
		{"ghost error", "/", &fakeTextGen{response: valid}, &fakeGhost{err: errors.New("down")}, "failed to save to ghost"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClipper(tt.gh, tt.gen).ClipURL(context.Background(), page.URL+tt.path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.Nil(t, tt.gh.created)
		})
	}
}
