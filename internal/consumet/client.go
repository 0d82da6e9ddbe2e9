package consumet

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"aninotify/internal/logger"
)

const userAgent = "AniNotify/1.0"

// Client is a client for the Consumet AniList meta API.

type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	log zerolog.Logger
}

// NewClient creates a new Consumet API client.

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: logger.With("consumet"),
	}
}

// FetchEpisodes returns the episode list of a title for one provider and
// language variant. Any failure yields an empty list.
func (c *Client) FetchEpisodes(ctx context.Context, titleID string, dub bool, provider string) []Episode {
	u := fmt.Sprintf("%s/meta/anilist/episodes/%s?dub=%t&provider=%s",
		c.BaseURL, url.PathEscape(titleID), dub, url.QueryEscape(provider))

	var raw []episodeResponse
	if err := c.getJSON(ctx, u, &raw); err != nil {
		c.log.Warn().Err(err).Str("title_id", titleID).Bool("dub", dub).Str("provider", provider).
			Msg("Failed to fetch episodes")
		return nil
	}

	episodes := make([]Episode, 0, len(raw))
	for _, r := range raw {
		ep, ok := r.toEpisode()
		if !ok {
			continue
		}
		episodes = append(episodes, ep)
	}
	return episodes
}

// FetchTitleInfo returns the status and metadata of a title. ok is false when
// the title could not be fetched or the response made no sense.
func (c *Client) FetchTitleInfo(ctx context.Context, titleID, titleType string) (TitleInfo, bool) {
	u := fmt.Sprintf("%s/meta/anilist/info/%s", c.BaseURL, url.PathEscape(titleID))

	var raw infoResponse
	if err := c.getJSON(ctx, u, &raw); err != nil {
		c.log.Warn().Err(err).Str("title_id", titleID).Msg("Failed to fetch title info")
		return TitleInfo{}, false
	}
	if strings.TrimSpace(raw.ID) == "" {
		c.log.Warn().Str("title_id", titleID).Msg("Title info response has no id")
		return TitleInfo{}, false
	}

	info := TitleInfo{
		ID:     raw.ID,
		Title:  raw.pickTitle(titleType),
		Status: mapStatus(raw.Status),
	}
	if raw.TotalEpisodes != nil && *raw.TotalEpisodes > 0 {
		info.TotalEpisodes = *raw.TotalEpisodes
	}
	return info, true
}

func (c *Client) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("error making request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("API returned status code %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(out); err != nil {
		return fmt.Errorf("invalid JSON response: %w", err)
	}
	return nil
}

func (r episodeResponse) toEpisode() (Episode, bool) {
	if r.Number == nil {
		return Episode{}, false
	}
	n := *r.Number
	if n <= 0 || n != math.Trunc(n) || n > math.MaxInt32 {
		return Episode{}, false
	}

	ep := Episode{
		Number:      int(n),
		Title:       deref(r.Title),
		Description: deref(r.Description),
		Image:       deref(r.Image),
	}
	if r.CreatedAt != nil {
		ep.ReleasedAt = parseReleaseTime(*r.CreatedAt)
	}
	return ep, true
}

func (r infoResponse) pickTitle(titleType string) string {
	var preferred string
	switch titleType {
	case "romaji":
		preferred = r.Title.Romaji
	case "native":
		preferred = r.Title.Native
	default:
		preferred = r.Title.English
	}
	for _, t := range []string{preferred, r.Title.Romaji, r.Title.UserPreferred, r.Title.English, r.Title.Native} {
		if t = strings.TrimSpace(t); t != "" {
			return t
		}
	}
	return r.ID
}

func mapStatus(s string) Status {
	switch strings.TrimSpace(s) {
	case "Completed":
		return StatusFinished
	case "Ongoing":
		return StatusReleasing
	default:
		return StatusNotYetReleased
	}
}

func parseReleaseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	// Some providers send unix milliseconds.
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil && ms > 0 {
		return time.UnixMilli(ms).UTC()
	}
	return time.Time{}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
