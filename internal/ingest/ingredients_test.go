package ingest

import "testing"

func TestParseIngredientLine_Table(t *testing.T) {
	cases := []struct {
		raw      string
		quantity string
		unit     string
		name     string
		comment  string
		rule     string
		parsed   bool
	}{
		{
			raw:      "1 1/2 cups flour, sifted",
			quantity: "1 1/2", unit: "cup", name: "flour", comment: "sifted",
			rule: "quantity_unit_name", parsed: true,
		},
		{
			raw:      "2 tbsp. olive oil",
			quantity: "2", unit: "tablespoon", name: "olive oil",
			rule: "quantity_unit_name", parsed: true,
		},
		{
			raw:      "½ teaspoon kosher salt",
			quantity: "1/2", unit: "teaspoon", name: "kosher salt",
			rule: "quantity_unit_name", parsed: true,
		},
		{
			raw:      "3 eggs",
			quantity: "3", name: "eggs",
			rule: "quantity_name", parsed: true,
		},
		{
			raw:      "1 to 2 cloves garlic, minced",
			quantity: "1-2", unit: "clove", name: "garlic", comment: "minced",
			rule: "quantity_unit_name", parsed: true,
		},
		{
			raw:  "salt and pepper to taste",
			name: "salt and pepper to taste",
			rule: "name_only", parsed: true,
		},
		{
			raw:      "2 cups of chicken stock",
			quantity: "2", unit: "cup", name: "chicken stock",
			rule: "quantity_unit_name", parsed: true,
		},
		{
			raw:      "1.5 lbs ground beef",
			quantity: "1.5", unit: "pound", name: "ground beef",
			rule: "quantity_unit_name", parsed: true,
		},
		{
			raw:      "4 tablespoons butter (softened)",
			quantity: "4", unit: "tablespoon", name: "butter", comment: "softened",
			rule: "quantity_unit_name", parsed: true,
		},
		{
			raw:    "",
			parsed: false,
		},
	}

	for _, c := range cases {
		got := ParseIngredientLine(c.raw)

		if got.Parsed != c.parsed {
			t.Fatalf("%q: parsed got %v, want %v", c.raw, got.Parsed, c.parsed)
		}
		if !c.parsed {
			continue
		}

		if got.Quantity != c.quantity {
			t.Fatalf("%q: quantity got %q, want %q", c.raw, got.Quantity, c.quantity)
		}
		if got.Unit != c.unit {
			t.Fatalf("%q: unit got %q, want %q", c.raw, got.Unit, c.unit)
		}
		if got.Name != c.name {
			t.Fatalf("%q: name got %q, want %q", c.raw, got.Name, c.name)
		}
		if got.Comment != c.comment {
			t.Fatalf("%q: comment got %q, want %q", c.raw, got.Comment, c.comment)
		}
		if got.Rule != c.rule {
			t.Fatalf("%q: rule got %q, want %q", c.raw, got.Rule, c.rule)
		}
	}
}

func TestParseIngredientLine_KeepsReference(t *testing.T) {
	raw := "1  cup   heavy    cream"
	got := ParseIngredientLine(raw)

	if got.Reference != "1 cup heavy cream" {
		t.Fatalf("reference should be the cleaned raw line, got %q", got.Reference)
	}
	if got.Name != "heavy cream" {
		t.Fatalf("name: got %q", got.Name)
	}
}

func TestNormalizeInstruction(t *testing.T) {
	cases := map[string]string{
		"1. Preheat the oven to 350F.":        "Preheat the oven to 350F.",
		"2) Mix the dry ingredients.":         "Mix the dry ingredients.",
		"Step 3: Fold in the egg whites.":     "Fold in the egg whites.",
		"- Let rest for ten minutes.":         "Let rest for ten minutes.",
		"  Serve   warm.  ":                   "Serve warm.",
		"Bake until golden, about 25 minutes": "Bake until golden, about 25 minutes",
	}

	for raw, want := range cases {
		if got := NormalizeInstruction(raw); got != want {
			t.Fatalf("%q: got %q, want %q", raw, got, want)
		}
	}
}
