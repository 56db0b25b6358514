package ingest

import (
	"context"
	"strings"
	"testing"

	"github.com/awehrman/peas/internal/engine"
)

const sampleNoteHTML = `<html>
<head>
	<title>Weeknight Chicken Soup</title>
	<meta name="source-url" content="https://www.example.com/recipes/chicken-soup?utm_source=feed">
</head>
<body>
	<h1>Weeknight Chicken Soup</h1>
	<img src="https://img.example.com/soup.jpg">
	<ul>
		<li>2 tbsp olive oil</li>
		<li>1 onion, diced</li>
		<li>2 cloves garlic, minced</li>
		<li>6 cups chicken stock</li>
		<li>salt to taste</li>
	</ul>
	<ol>
		<li>Heat the olive oil in a large pot over medium heat until shimmering.</li>
		<li>Add the onion and garlic and cook until soft, about five minutes.</li>
		<li>Pour in the stock and simmer for twenty minutes before serving.</li>
	</ol>
</body>
</html>`

func runParseHTML(t *testing.T, payload engine.JobData) engine.JobData {
	t.Helper()

	a := NewParseHTMLAction()

	res := engine.ExecuteWithTiming(context.Background(), a, payload, &engine.Deps{}, &engine.ActionContext{
		JobID:     "job-html",
		Operation: "parse_html",
	})

	if !res.Success() {
		t.Fatalf("parse_html failed: %v", res.Err)
	}

	return res.Data
}

func TestParseHTML_ExtractsSkeleton(t *testing.T) {
	out := runParseHTML(t, engine.JobData{
		"importId": "i1",
		"content":  sampleNoteHTML,
	})

	if out["title"] != "Weeknight Chicken Soup" {
		t.Fatalf("title: got %v", out["title"])
	}
	if out["sourceUrl"] != "https://www.example.com/recipes/chicken-soup?utm_source=feed" {
		t.Fatalf("sourceUrl: got %v", out["sourceUrl"])
	}

	refs := out["imageRefs"].([]string)
	if len(refs) != 1 || refs[0] != "https://img.example.com/soup.jpg" {
		t.Fatalf("imageRefs: got %v", refs)
	}

	blocks := out["ingredientBlocks"].([][]string)
	if len(blocks) != 1 {
		t.Fatalf("expected 1 ingredient block, got %d", len(blocks))
	}
	if len(blocks[0]) != 5 {
		t.Fatalf("expected 5 ingredient lines, got %d: %v", len(blocks[0]), blocks[0])
	}
	if blocks[0][0] != "2 tbsp olive oil" {
		t.Fatalf("first ingredient line: got %q", blocks[0][0])
	}

	instructions := out["instructionLines"].([]string)
	if len(instructions) != 3 {
		t.Fatalf("expected 3 instruction lines, got %d", len(instructions))
	}
	if !strings.HasPrefix(instructions[0], "Heat the olive oil") {
		t.Fatalf("first instruction: got %q", instructions[0])
	}
}

func TestParseHTML_TitleFallsBackToFilename(t *testing.T) {
	out := runParseHTML(t, engine.JobData{
		"importId": "i2",
		"content":  `<html><body><p>just text</p></body></html>`,
		"filename": "grandmas-apple-pie.html",
	})

	if out["title"] != "grandmas apple pie" {
		t.Fatalf("title fallback: got %v", out["title"])
	}
}

func TestParseHTML_MissingContentIsValidationFailure(t *testing.T) {
	a := NewParseHTMLAction()

	res := engine.ExecuteWithTiming(context.Background(), a, engine.JobData{"importId": "i3"}, &engine.Deps{}, &engine.ActionContext{Operation: "parse_html"})

	if res.Success() {
		t.Fatalf("expected rejection without content")
	}
	if !strings.Contains(res.Err.Error(), "content is required") {
		t.Fatalf("expected schema message, got %v", res.Err)
	}
}
