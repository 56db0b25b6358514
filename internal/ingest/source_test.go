package ingest

import "testing"

func TestNormalizeSource(t *testing.T) {
	cases := []struct {
		raw  string
		want string
		site string
	}{
		{
			raw:  "https://www.example.com/recipes/soup?utm_source=feed&utm_medium=rss",
			want: "https://www.example.com/recipes/soup",
			site: "example.com",
		},
		{
			raw:  "Example.COM/pie",
			want: "https://example.com/pie",
			site: "example.com",
		},
		{
			raw:  "https://smittenkitchen.com/2019/01/simple-cake/?fbclid=abc123#comments",
			want: "https://smittenkitchen.com/2019/01/simple-cake/",
			site: "smittenkitchen.com",
		},
	}

	for _, c := range cases {
		got, site, err := NormalizeSource(c.raw)
		if err != nil {
			t.Fatalf("%q: unexpected error %v", c.raw, err)
		}
		if got != c.want {
			t.Fatalf("%q: got %q, want %q", c.raw, got, c.want)
		}
		if site != c.site {
			t.Fatalf("%q: site got %q, want %q", c.raw, site, c.site)
		}
	}
}

func TestNormalizeSource_Rejects(t *testing.T) {
	for _, raw := range []string{"", "   ", "https://"} {
		if _, _, err := NormalizeSource(raw); err == nil {
			t.Fatalf("%q: expected error", raw)
		}
	}
}

func TestPrimaryImage(t *testing.T) {
	meta, ok := PrimaryImage([]string{"", "https://img.example.com/pie.JPG?w=1200"})
	if !ok {
		t.Fatalf("expected an image")
	}
	if meta.Format != "jpeg" || meta.IsData {
		t.Fatalf("unexpected meta: %+v", meta)
	}

	meta, ok = PrimaryImage([]string{"data:image/png;base64,iVBORw0KGgo="})
	if !ok || !meta.IsData || meta.Format != "png" {
		t.Fatalf("data url meta: %+v", meta)
	}

	if _, ok := PrimaryImage(nil); ok {
		t.Fatalf("no refs must mean no image")
	}
}
