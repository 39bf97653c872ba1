package clipper

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"nutriplan/internal/ghost"
	"nutriplan/internal/llm"
	"nutriplan/internal/shared"

	"github.com/PuerkitoBio/goquery"
)

const maxPageChars = 20000

// Clipper turns a recipe web page into a blog post of the catalog source.
type Clipper struct {
	ghostClient ghost.Client
	textGen     llm.TextGenerator
	httpClient  *http.Client
}

// ExtractedRecipe is the structure the model returns for a clipped page.
type ExtractedRecipe struct {
	Title       string   `json:"title"`
	Ingredients []string `json:"ingredients"`
	Steps       []string `json:"steps"`
	PrepTime    string   `json:"prep_time"`
	Servings    string   `json:"servings"`
}

// Result is a clipped post plus the cost of extracting it.
type Result struct {
	Post *ghost.Post
	Meta shared.AgentMeta
}

func NewClipper(ghostClient ghost.Client, textGen llm.TextGenerator) *Clipper {
	return &Clipper{
		ghostClient: ghostClient,
		textGen:     textGen,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
	}
}

// ClipURL fetches the page, extracts the recipe and publishes it.
func (c *Clipper) ClipURL(ctx context.Context, pageURL string) (Result, error) {
	content, err := c.fetchText(ctx, pageURL)
	if err != nil {
		return Result{}, fmt.Errorf("failed to fetch content: %w", err)
	}

	start := time.Now()
	resp, err := c.textGen.GenerateContent(ctx, buildPrompt(content))
	meta := shared.AgentMeta{AgentName: "Clipper", Usage: resp.Usage, Latency: time.Since(start)}
	if err != nil {
		return Result{Meta: meta}, fmt.Errorf("ai extraction failed: %w", err)
	}

	extracted, err := llm.ExtractJSON(resp.Content, func(r ExtractedRecipe) error {
		if strings.TrimSpace(r.Title) == "" {
			return errors.New("missing title")
		}
		if len(r.Ingredients) == 0 {
			return errors.New("no ingredients found on page")
		}
		return nil
	})
	if err != nil {
		return Result{Meta: meta}, fmt.Errorf("failed to parse AI response: %w", err)
	}

	post, err := c.ghostClient.CreatePost(ctx, extracted.Title, FormatHTML(extracted, pageURL), true)
	if err != nil {
		return Result{Meta: meta}, fmt.Errorf("failed to save to ghost: %w", err)
	}
	return Result{Post: post, Meta: meta}, nil
}

func buildPrompt(content string) string {
	return fmt.Sprintf(`You are a recipe extraction expert. Extract the recipe from the page text below.
Return only a JSON object with this structure:
{
  "title": "Recipe Title",
  "ingredients": ["200 g rice", "1 tbsp olive oil"],
  "steps": ["Step 1 description", "Step 2 description"],
  "prep_time": "e.g. 30 mins",
  "servings": "e.g. 4"
}

Page text:
%s
`, content)
}

func (c *Clipper) fetchText(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to fetch URL: status %d", resp.StatusCode)
	}
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", err
	}
	return CleanText(doc), nil
}

// CleanText drops scripts, navigation and ads and collapses whitespace.
func CleanText(doc *goquery.Document) string {
	doc.Find("script, style, noscript, nav, header, footer, iframe, form, .ads, #ads, [class*=comment]").Remove()

	text := strings.Join(strings.Fields(doc.Find("body").Text()), " ")
	if len(text) > maxPageChars {
		text = text[:maxPageChars]
	}
	return text
}

// FormatHTML renders an extracted recipe as post HTML.
func FormatHTML(r ExtractedRecipe, sourceURL string) string {
	var sb strings.Builder
	src := html.EscapeString(sourceURL)
	fmt.Fprintf(&sb, `<p><i>Imported from: <a href="%s">%s</a></i></p>`, src, src)

	sb.WriteString("<h2>Ingredients</h2><ul>")
	for _, ing := range r.Ingredients {
		fmt.Fprintf(&sb, "<li>%s</li>", html.EscapeString(ing))
	}
	sb.WriteString("</ul><h2>Instructions</h2><ol>")
	for _, step := range r.Steps {
		fmt.Fprintf(&sb, "<li>%s</li>", html.EscapeString(step))
	}
	sb.WriteString("</ol><hr>")
	fmt.Fprintf(&sb, "<p><strong>Prep Time:</strong> %s | <strong>Servings:</strong> %s</p>",
		html.EscapeString(r.PrepTime), html.EscapeString(r.Servings))
	return sb.String()
}
