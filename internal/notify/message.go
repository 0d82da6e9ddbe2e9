package notify

import (
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"aninotify/internal/db"
)

const (
	embedColor   = 11730954
	authorName   = "Ani-Notify"
	footerText   = "Delivered by Ani-Notify"
	notAvailable = "N/A"
)

// Headline is the one-line announcement shared by every channel.
func Headline(title db.Title, ep db.Episode) string {
	dub := ""
	if ep.Dub {
		dub = "(Dub) "
	}
	return fmt.Sprintf("Episode %d %sof %s is out!", ep.Number, dub, titleName(title))
}

// Details lists the episode title, description, language and providers, one
// per line.
func Details(ep db.Episode) string {
	var b strings.Builder
	b.WriteString("Title: " + orNA(ep.Title) + "\n")
	if d := strings.TrimSpace(ep.Description); d != "" {
		b.WriteString("Description: " + d + "\n")
	}
	b.WriteString("Language: " + variantName(ep) + "\n")
	b.WriteString("You can watch it on " + ProviderNames(ep))
	return b.String()
}

// PlainText is the ntfy message body.
func PlainText(title db.Title, ep db.Episode) string {
	return Headline(title, ep) + "\n\n" + Details(ep)
}

func FormatEpisodeHTML(title db.Title, ep db.Episode) string {
	var b strings.Builder
	b.WriteString("📺 <b>" + html.EscapeString(Headline(title, ep)) + "</b>\n\n")
	b.WriteString("<b>Title:</b> " + html.EscapeString(orNA(ep.Title)) + "\n")
	if d := strings.TrimSpace(ep.Description); d != "" {
		b.WriteString("<b>Description:</b> " + html.EscapeString(d) + "\n")
	}
	b.WriteString("<b>Language:</b> " + variantName(ep) + "\n")
	b.WriteString("You can watch it on " + html.EscapeString(ProviderNames(ep)))
	return b.String()
}

// ProviderNames capitalises the first letter of each provider and joins
// them with ", ".
func ProviderNames(ep db.Episode) string {
	providers := ep.ProviderList()
	caser := cases.Title(language.Und)
	for i, p := range providers {
		_, size := utf8.DecodeRuneInString(p)
		providers[i] = caser.String(p[:size]) + p[size:]
	}
	return strings.Join(providers, ", ")
}

func variantName(ep db.Episode) string {
	if ep.Dub {
		return "Dub"
	}
	return "Sub"
}

func titleName(t db.Title) string {
	if strings.TrimSpace(t.Title) != "" {
		return t.Title
	}
	return t.ID
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return notAvailable
	}
	return s
}
