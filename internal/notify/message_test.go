package notify

import (
	"strings"
	"testing"

	"aninotify/internal/db"
)

func TestFormatEpisodeHTML_EscapesDynamicContent(t *testing.T) {
	msg := FormatEpisodeHTML(
		db.Title{ID: "1", Title: `My <b>show</b> & friends`},
		db.Episode{Number: 3, Providers: "zoro", Title: `Title with <script>alert(1)</script> & stuff`},
	)

	if strings.Contains(msg, "<script>") {
		t.Fatalf("message should escape HTML, got: %q", msg)
	}
	if !strings.Contains(msg, "My &lt;b&gt;show&lt;/b&gt; &amp; friends") {
		t.Fatalf("expected escaped title, got: %q", msg)
	}
	if !strings.Contains(msg, "&lt;script&gt;alert(1)&lt;/script&gt;") {
		t.Fatalf("expected escaped episode title, got: %q", msg)
	}
}

func TestDetails(t *testing.T) {
	got := Details(db.Episode{Number: 1, Providers: "gogoanime"})
	want := "Title: N/A\nLanguage: Sub\nYou can watch it on Gogoanime"
	if got != want {
		t.Fatalf("Details() = %q, want %q", got, want)
	}
}

func TestHeadline_FallsBackToID(t *testing.T) {
	got := Headline(db.Title{ID: "21"}, db.Episode{Number: 2})
	if got != "Episode 2 of 21 is out!" {
		t.Fatalf("Headline() = %q", got)
	}
}

func TestProviderNames_KeepsInnerCase(t *testing.T) {
	ep := db.Episode{Providers: "animePahe,gogoanime,9anime"}
	if got, want := ProviderNames(ep), "AnimePahe, Gogoanime, 9anime"; got != want {
		t.Fatalf("ProviderNames() = %q, want %q", got, want)
	}
}
