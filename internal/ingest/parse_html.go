package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/awehrman/peas/internal/engine"
)

// ParseHTMLInput is the payload the first stage receives from the API.
type ParseHTMLInput struct {
	ImportID string `json:"importId" validate:"required"`
	Content  string `json:"content" validate:"required"`
	Filename string `json:"filename"`
}

// NewParseHTMLAction extracts the recipe skeleton out of submitted note
// HTML: title, source url, image references, and candidate ingredient /
// instruction line blocks for the downstream parsers.
func NewParseHTMLAction() engine.Action {
	return &engine.TypedAction[ParseHTMLInput]{
		ActionName: "parse_html",
		Run: func(_ context.Context, in ParseHTMLInput, _ *engine.Deps, _ *engine.ActionContext) (engine.JobData, error) {
			doc, err := goquery.NewDocumentFromReader(strings.NewReader(in.Content))
			if err != nil {
				return nil, fmt.Errorf("%w: unreadable html: %v", engine.ErrPermanent, err)
			}

			parsed := extractNote(doc)

			if parsed.Title == "" {
				parsed.Title = titleFromFilename(in.Filename)
			}
			if parsed.Title == "" {
				return nil, fmt.Errorf("%w: note has no title and no content headings", engine.ErrPermanent)
			}

			out := engine.JobData{
				"title":            parsed.Title,
				"contentHtml":      parsed.ContentHTML,
				"imageRefs":        parsed.ImageRefs,
				"ingredientBlocks": parsed.IngredientBlocks,
				"instructionLines": parsed.InstructionLines,
			}

			if parsed.SourceURL != "" {
				out["sourceUrl"] = parsed.SourceURL
			}

			return out, nil
		},
	}
}

type parsedNote struct {
	Title            string
	SourceURL        string
	ContentHTML      string
	ImageRefs        []string
	IngredientBlocks [][]string
	InstructionLines []string
}

func extractNote(doc *goquery.Document) parsedNote {
	var p parsedNote

	// title: <title>, then the first heading
	p.Title = cleanLine(doc.Find("title").First().Text())
	if p.Title == "" {
		p.Title = cleanLine(doc.Find("h1, h2").First().Text())
	}

	// source: evernote export attribute, then meta, then the first link
	if v, ok := doc.Find("en-note").Attr("source-url"); ok {
		p.SourceURL = v
	}
	if p.SourceURL == "" {
		if v, ok := doc.Find(`meta[name="source-url"]`).Attr("content"); ok {
			p.SourceURL = v
		}
	}
	if p.SourceURL == "" {
		if v, ok := doc.Find("a[href]").First().Attr("href"); ok && strings.HasPrefix(v, "http") {
			p.SourceURL = v
		}
	}

	doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok && src != "" {
			p.ImageRefs = append(p.ImageRefs, src)
		}
	})

	if body, err := doc.Find("body").Html(); err == nil && body != "" {
		p.ContentHTML = strings.TrimSpace(body)
	}

	blocks := collectBlocks(doc)

	for _, b := range blocks {
		if len(b.lines) == 0 {
			continue
		}

		switch {
		case b.ordered || looksLikeInstructions(b.lines):
			p.InstructionLines = append(p.InstructionLines, b.lines...)
		case looksLikeIngredients(b.lines):
			p.IngredientBlocks = append(p.IngredientBlocks, b.lines)
		}
	}

	return p
}

type lineBlock struct {
	lines   []string
	ordered bool
}

// collectBlocks groups the note into line blocks: each list is one
// block, consecutive paragraphs form one block.
func collectBlocks(doc *goquery.Document) []lineBlock {
	var blocks []lineBlock

	doc.Find("ul, ol").Each(func(_ int, list *goquery.Selection) {
		b := lineBlock{ordered: goquery.NodeName(list) == "ol"}

		list.Find("li").Each(func(_ int, li *goquery.Selection) {
			if line := cleanLine(li.Text()); line != "" {
				b.lines = append(b.lines, line)
			}
		})

		if len(b.lines) > 0 {
			blocks = append(blocks, b)
		}
	})

	var para lineBlock
	doc.Find("p").Each(func(_ int, sel *goquery.Selection) {
		line := cleanLine(sel.Text())

		if line == "" {
			if len(para.lines) > 0 {
				blocks = append(blocks, para)
				para = lineBlock{}
			}
			return
		}

		para.lines = append(para.lines, line)
	})
	if len(para.lines) > 0 {
		blocks = append(blocks, para)
	}

	return blocks
}

// looksLikeIngredients votes per line: quantities and measure units at
// the front of short lines.
func looksLikeIngredients(lines []string) bool {
	hits := 0
	for _, l := range lines {
		if lineLooksLikeIngredient(l) {
			hits++
		}
	}

	return hits*2 >= len(lines)
}

func lineLooksLikeIngredient(line string) bool {
	if len(line) > 120 {
		return false
	}

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	if _, _, ok := readQuantity(fields); ok {
		return true
	}

	// "salt", "pepper to taste" style lines are short and unit-free
	return len(fields) <= 4
}

// looksLikeInstructions: long imperative sentences.
func looksLikeInstructions(lines []string) bool {
	long := 0
	for _, l := range lines {
		if len(l) >= 40 {
			long++
		}
	}

	return long*2 > len(lines)
}

func cleanLine(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.Join(strings.Fields(s), " ")
}

func titleFromFilename(filename string) string {
	if filename == "" {
		return ""
	}

	base := filename
	if i := strings.LastIndex(base, "."); i > 0 {
		base = base[:i]
	}

	base = strings.NewReplacer("-", " ", "_", " ").Replace(base)
	return cleanLine(base)
}
