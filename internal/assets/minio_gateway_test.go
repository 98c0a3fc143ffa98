package assets

import "testing"

func TestObjectName(t *testing.T) {
	cases := []struct {
		folder    string
		sessionID string
		id        string
		want      string
	}{
		{"articles", "sess-1", "abc", "articles/sess-1/abc"},
		{"Articles ", "Sess 1", "abc", "articles/sess1/abc"},
		{"", "", "abc", "uploads/anonymous/abc"},
		{"articles/art_1", "sess-1", "abc", "articles/art_1/sess-1/abc"},
		{"Articles/Art 1/", "sess-1", "abc", "articles/art1/sess-1/abc"},
		{"../../etc", "s", "abc", "etc/s/abc"},
	}
	for _, tc := range cases {
		if got := ObjectName(tc.folder, tc.sessionID, tc.id); got != tc.want {
			t.Errorf("ObjectName(%q, %q, %q) = %q, want %q", tc.folder, tc.sessionID, tc.id, got, tc.want)
		}
	}
}

func TestObjectFromURL(t *testing.T) {
	gateway := &MinioGateway{baseURL: "https://media.inkwell.dev/inkwell-media"}

	object, ok := gateway.objectFromURL("https://media.inkwell.dev/inkwell-media/articles/sess-1/abc")
	if !ok || object != "articles/sess-1/abc" {
		t.Errorf("expected object name, got %q ok=%v", object, ok)
	}

	if _, ok := gateway.objectFromURL("https://elsewhere.example/image.png"); ok {
		t.Error("foreign URL should not resolve to an object")
	}
	if _, ok := gateway.objectFromURL("https://media.inkwell.dev/inkwell-media/"); ok {
		t.Error("empty object name should not resolve")
	}
}
