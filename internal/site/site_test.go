package site

import "testing"

func TestLoadEmbedded(t *testing.T) {
	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Brand.Name != "Bikaner Express Delivery" {
		t.Fatalf("brand: %q", c.Brand.Name)
	}
	if len(c.Steps) != 4 || c.Steps[0].Title != "Book on WhatsApp" {
		t.Fatalf("steps: %+v", c.Steps)
	}
	if len(c.Nav) != 5 {
		t.Fatalf("nav: %+v", c.Nav)
	}
	if c.Meta("rate-card").Keywords == "" {
		t.Fatal("rate card keywords missing")
	}
}

func TestParseRequiresPageTitles(t *testing.T) {
	if _, err := Parse([]byte("pages:\n  home:\n    title: x\n")); err == nil {
		t.Fatal("missing page titles should fail")
	}
	if _, err := Parse([]byte(":::")); err == nil {
		t.Fatal("bad yaml should fail")
	}
}
