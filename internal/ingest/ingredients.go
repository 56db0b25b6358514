package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/awehrman/peas/internal/engine"
	"github.com/awehrman/peas/internal/domain/note"
	"github.com/google/uuid"
)

// ParseIngredientsInput arrives from the save_note stage.
type ParseIngredientsInput struct {
	ImportID         string     `json:"importId" validate:"required"`
	NoteID           string     `json:"noteId" validate:"required"`
	IngredientBlocks [][]string `json:"ingredientBlocks"`
}

// NewParseIngredientsAction runs the line grammar over every ingredient
// block and persists the parsed lines on the note.
func NewParseIngredientsAction() engine.Action {
	return &engine.TypedAction[ParseIngredientsInput]{
		ActionName: "parse_ingredients",
		Run: func(ctx context.Context, in ParseIngredientsInput, d *engine.Deps, actx *engine.ActionContext) (engine.JobData, error) {
			svc, err := servicesFrom(d)
			if err != nil {
				return nil, err
			}

			var lines []note.IngredientLine

			parsedCount := 0
			for blockIdx, block := range in.IngredientBlocks {
				for lineIdx, raw := range block {
					line := ParseIngredientLine(raw)
					line.ID = uuid.NewString()
					line.BlockIndex = blockIdx
					line.LineIndex = lineIdx

					if line.Parsed {
						parsedCount++
					}

					lines = append(lines, line)
				}
			}

			if err := svc.Notes.UpdateIngredients(ctx, in.NoteID, lines); err != nil {
				return nil, fmt.Errorf("update ingredients: %w", err)
			}

			rate := 1.0
			if len(lines) > 0 {
				rate = float64(parsedCount) / float64(len(lines))
			}

			return engine.JobData{
				"ingredientCount": len(lines),
				"parsedCount":     parsedCount,
				"parseRate":       rate,
			}, nil
		},
	}
}

// unit vocabulary, singular form -> canonical name. Plurals and trailing
// dots are normalized before lookup.
var units = map[string]string{
	"cup": "cup", "c": "cup",
	"tablespoon": "tablespoon", "tbsp": "tablespoon", "tbs": "tablespoon", "tb": "tablespoon",
	"teaspoon": "teaspoon", "tsp": "teaspoon", "ts": "teaspoon",
	"ounce": "ounce", "oz": "ounce",
	"pound": "pound", "lb": "pound",
	"gram": "gram", "g": "gram",
	"kilogram": "kilogram", "kg": "kilogram",
	"milliliter": "milliliter", "ml": "milliliter",
	"liter": "liter", "l": "liter",
	"quart": "quart", "qt": "quart",
	"pint": "pint", "pt": "pint",
	"gallon": "gallon",
	"pinch":  "pinch",
	"dash":   "dash",
	"clove":  "clove",
	"can":    "can",
	"jar":    "jar",
	"slice":  "slice",
	"stick":  "stick",
	"bunch":  "bunch",
	"sprig":  "sprig",
	"head":   "head",
	"piece":  "piece",
	"package": "package", "pkg": "package",
	"stalk": "stalk",
	"handful": "handful",
}

var unicodeFractions = map[rune]string{
	'¼': "1/4", '½': "1/2", '¾': "3/4",
	'⅓': "1/3", '⅔': "2/3",
	'⅛': "1/8", '⅜': "3/8", '⅝': "5/8", '⅞': "7/8",
}

// ParseIngredientLine applies the line grammar
// [quantity] [unit] name [, comment] and reports which rule matched.
// Lines that yield no name come back with Parsed=false and the raw text
// preserved in Reference.
func ParseIngredientLine(raw string) note.IngredientLine {
	line := note.IngredientLine{Reference: cleanLine(raw)}

	fields := strings.Fields(normalizeFractions(line.Reference))
	if len(fields) == 0 {
		return line
	}

	qty, rest, hasQty := readQuantity(fields)
	line.Quantity = qty

	if hasQty && len(rest) > 0 {
		if canonical, ok := lookupUnit(rest[0]); ok {
			line.Unit = canonical
			rest = rest[1:]

			// "2 cups of flour"
			if len(rest) > 0 && strings.EqualFold(rest[0], "of") {
				rest = rest[1:]
			}
		}
	}

	name, comment := splitComment(strings.Join(rest, " "))
	line.Name = strings.TrimSpace(name)
	line.Comment = comment

	switch {
	case line.Name == "":
		line.Rule = ""
		line.Parsed = false
	case line.Quantity != "" && line.Unit != "":
		line.Rule = "quantity_unit_name"
		line.Parsed = true
	case line.Quantity != "":
		line.Rule = "quantity_name"
		line.Parsed = true
	default:
		line.Rule = "name_only"
		line.Parsed = true
	}

	return line
}

// readQuantity consumes a leading amount: "2", "1/2", "1 1/2", "2.5",
// "1-2", "1 to 2". Returns the normalized quantity, the remaining
// fields, and whether anything matched.
func readQuantity(fields []string) (string, []string, bool) {
	if len(fields) == 0 {
		return "", fields, false
	}

	if !isNumericToken(fields[0]) {
		return "", fields, false
	}

	qty := fields[0]
	rest := fields[1:]

	// mixed number: "1 1/2"
	if len(rest) > 0 && isFractionToken(rest[0]) {
		qty += " " + rest[0]
		rest = rest[1:]
		return qty, rest, true
	}

	// range: "1 to 2"
	if len(rest) >= 2 && strings.EqualFold(rest[0], "to") && isNumericToken(rest[1]) {
		qty += "-" + rest[1]
		rest = rest[2:]
	}

	return qty, rest, true
}

func isNumericToken(s string) bool {
	if s == "" {
		return false
	}

	if isFractionToken(s) {
		return true
	}

	// plain number, decimal, or inline range "1-2"
	seenDigit := false
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			seenDigit = true
		case r == '.' || r == '-' || r == '/':
		default:
			return false
		}
	}
	return seenDigit
}

func isFractionToken(s string) bool {
	i := strings.Index(s, "/")
	if i <= 0 || i == len(s)-1 {
		return false
	}
	return isDigits(s[:i]) && isDigits(s[i+1:])
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func lookupUnit(token string) (string, bool) {
	t := strings.ToLower(strings.TrimRight(token, "."))
	t = strings.TrimSuffix(t, "s")

	if t == "" {
		return "", false
	}

	canonical, ok := units[t]
	return canonical, ok
}

func splitComment(s string) (name, comment string) {
	if i := strings.Index(s, ","); i >= 0 {
		return s[:i], strings.TrimSpace(s[i+1:])
	}

	// parenthetical comments: "butter (softened)"
	if i := strings.Index(s, "("); i >= 0 {
		comment := strings.TrimSpace(s[i:])
		comment = strings.TrimPrefix(comment, "(")
		comment = strings.TrimSuffix(comment, ")")
		return strings.TrimSpace(s[:i]), comment
	}

	return s, ""
}

func normalizeFractions(s string) string {
	var b strings.Builder

	for i, r := range s {
		if frac, ok := unicodeFractions[r]; ok {
			// "1½" needs a separating space to read as a mixed number
			if i > 0 && s[i-1] >= '0' && s[i-1] <= '9' {
				b.WriteString(" ")
			}
			b.WriteString(frac)
			continue
		}
		b.WriteRune(r)
	}

	return b.String()
}
