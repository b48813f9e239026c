package extract

import (
	"slices"
	"testing"
)

func TestLinks(t *testing.T) {
	t.Parallel()

	body := `<html><head>
<base href="https://cdn.test.notreal/">
<meta http-equiv="Refresh" content="5; url='/next.html'">
<link rel="stylesheet" href="/style.css">
</head><body>
<a href="/relative.html">r</a>
<a href='pagerelative1.html'>p</a>
<a HREF=./pagerelative2.html>p2</a>
<a href="/a?x=1&amp;y=2">amp</a>
<a href="javascript:void(0)">js</a>
<a href="mailto:a@test.notreal">mail</a>
<a href="#top">frag</a>
<a href="   ">blank</a>
<img src="/img.png" srcset="/small.png 1x, /large.png 2x">
<form action="/search"><button formaction="/alt">go</button></form>
<script src="/link_relative.js"></script>
</body></html>`

	doc, err := ParseHTML([]byte(body))
	if err != nil {
		t.Fatalf("failed to parse html: %v", err)
	}

	var values []string
	for _, l := range Links(doc) {
		values = append(values, l.Value)
	}

	want := []string{
		"/next.html",
		"/style.css",
		"/relative.html",
		"pagerelative1.html",
		"./pagerelative2.html",
		"/a?x=1&y=2",
		"/img.png",
		"/small.png",
		"/large.png",
		"/search",
		"/alt",
		"/link_relative.js",
	}
	if !slices.Equal(values, want) {
		t.Errorf("expected %v, got %v", want, values)
	}

	if got := BaseHref(doc); got != "https://cdn.test.notreal/" {
		t.Errorf("expected base href, got %q", got)
	}
}

func TestLinksTagAndAttr(t *testing.T) {
	t.Parallel()

	doc, err := ParseHTML([]byte(`<img src="/a.png"><a href="/b">b</a>`))
	if err != nil {
		t.Fatalf("failed to parse html: %v", err)
	}

	links := Links(doc)
	if len(links) != 2 {
		t.Fatalf("expected 2 links, got %d", len(links))
	}
	if links[0].Tag != "img" || links[0].Attr != "src" {
		t.Errorf("expected img/src, got %s/%s", links[0].Tag, links[0].Attr)
	}
	if links[1].Tag != "a" || links[1].Attr != "href" {
		t.Errorf("expected a/href, got %s/%s", links[1].Tag, links[1].Attr)
	}
}

func TestLinksNilDocument(t *testing.T) {
	t.Parallel()

	if links := Links(nil); links != nil {
		t.Errorf("expected nil, got %v", links)
	}
	if got := BaseHref(nil); got != "" {
		t.Errorf("expected empty base href, got %q", got)
	}
}

func TestRefreshTarget(t *testing.T) {
	t.Parallel()

	tests := []struct {
		content string
		want    string
		ok      bool
	}{
		{content: "0; url=/landing", want: "/landing", ok: true},
		{content: `3;URL="https://a.test/"`, want: "https://a.test/", ok: true},
		{content: "5", ok: false},
		{content: "5; nothing", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.content, func(t *testing.T) {
			t.Parallel()

			got, ok := refreshTarget(tt.content)
			if ok != tt.ok || got != tt.want {
				t.Errorf("expected (%q, %v), got (%q, %v)", tt.want, tt.ok, got, ok)
			}
		})
	}
}
