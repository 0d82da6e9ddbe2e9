package anilist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"aninotify/internal/logger"
)

const (
	DefaultURL = "https://graphql.anilist.co"

	userIDCachePrefix = "aninotify:anilist:user:"
	userIDCacheTTL    = 24 * time.Hour

	// maxPages bounds the airing schedule walk.
	maxPages = 50
)

// ListStatus is an AniList media list status.
type ListStatus string

const (
	ListPlanned ListStatus = "PLANNED"
	ListCurrent ListStatus = "CURRENT"
)

var ErrUserNotFound = errors.New("anilist user not found")

// Client talks to the AniList GraphQL API. Redis is optional and only caches
// username to id lookups.
type Client struct {
	URL        string
	HTTPClient *http.Client
	Redis      *redis.Client

	// Now is used for the airing window; defaults to time.Now.
	Now func() time.Time

	log zerolog.Logger
}

func NewClient(url string, rdb *redis.Client) *Client {
	if strings.TrimSpace(url) == "" {
		url = DefaultURL
	}
	return &Client{
		URL:   url,
		Redis: rdb,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		Now: time.Now,
		log: logger.With("anilist"),
	}
}

// ResolveUserID turns a stored AniList reference into a numeric id. Numeric
// values pass through untouched.
func (c *Client) ResolveUserID(ctx context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", ErrUserNotFound
	}
	if _, err := strconv.Atoi(ref); err == nil {
		return ref, nil
	}

	key := userIDCachePrefix + strings.ToLower(ref)
	if c.Redis != nil {
		cached, err := c.Redis.Get(ctx, key).Result()
		if err == nil && cached != "" {
			return cached, nil
		}
		if err != nil && !errors.Is(err, redis.Nil) {
			c.log.Warn().Err(err).Msg("Failed to read from Redis")
		}
	}

	var data struct {
		User *struct {
			ID int `json:"id"`
		} `json:"User"`
	}
	err := c.query(ctx, `query ($username: String) { User(name: $username) { id } }`,
		map[string]any{"username": ref}, &data)
	if err != nil {
		return "", err
	}
	if data.User == nil || data.User.ID <= 0 {
		return "", ErrUserNotFound
	}
	id := strconv.Itoa(data.User.ID)

	if c.Redis != nil {
		if err := c.Redis.Set(ctx, key, id, userIDCacheTTL).Err(); err != nil {
			c.log.Warn().Err(err).Msg("Failed to write user id to cache")
		}
	}
	return id, nil
}

// List returns the media ids on a user's anime list with the given status.
func (c *Client) List(ctx context.Context, userID string, status ListStatus) ([]string, error) {
	id, err := strconv.Atoi(strings.TrimSpace(userID))
	if err != nil {
		return nil, fmt.Errorf("invalid anilist user id %q", userID)
	}

	var data struct {
		MediaListCollection *struct {
			Lists []struct {
				Entries []struct {
					MediaID int `json:"mediaId"`
				} `json:"entries"`
			} `json:"lists"`
		} `json:"MediaListCollection"`
	}
	err = c.query(ctx, `query ($userId: Int, $status: MediaListStatus) {
  MediaListCollection(userId: $userId, type: ANIME, status: $status) {
    lists { entries { mediaId } }
  }
}`, map[string]any{"userId": id, "status": string(status)}, &data)
	if err != nil {
		return nil, err
	}
	if data.MediaListCollection == nil {
		return nil, nil
	}

	var ids []string
	seen := make(map[int]struct{})
	for _, l := range data.MediaListCollection.Lists {
		for _, e := range l.Entries {
			if e.MediaID <= 0 {
				continue
			}
			if _, ok := seen[e.MediaID]; ok {
				continue
			}
			seen[e.MediaID] = struct{}{}
			ids = append(ids, strconv.Itoa(e.MediaID))
		}
	}
	return ids, nil
}

// AiringTitles returns the ids of RELEASING titles with an episode airing in
// the next `days` days. Pages are walked until AniList reports no next page.
func (c *Client) AiringTitles(ctx context.Context, days int) ([]string, error) {
	if days <= 0 {
		days = 2
	}
	from := c.Now().Unix()
	to := from + int64(days)*24*60*60

	var ids []string
	seen := make(map[int]struct{})
	for page := 1; page <= maxPages; page++ {
		var data struct {
			Page struct {
				PageInfo struct {
					HasNextPage bool `json:"hasNextPage"`
				} `json:"pageInfo"`
				AiringSchedules []struct {
					Media *struct {
						ID     int    `json:"id"`
						Status string `json:"status"`
					} `json:"media"`
				} `json:"airingSchedules"`
			} `json:"Page"`
		}
		err := c.query(ctx, `query ($page: Int, $from: Int, $to: Int) {
  Page(page: $page) {
    pageInfo { hasNextPage }
    airingSchedules(airingAt_greater: $from, airingAt_lesser: $to) { media { id status } }
  }
}`, map[string]any{"page": page, "from": from, "to": to}, &data)
		if err != nil {
			return ids, fmt.Errorf("airing schedule page %d: %w", page, err)
		}

		for _, s := range data.Page.AiringSchedules {
			if s.Media == nil || s.Media.Status != "RELEASING" {
				continue
			}
			if _, ok := seen[s.Media.ID]; ok {
				continue
			}
			seen[s.Media.ID] = struct{}{}
			ids = append(ids, strconv.Itoa(s.Media.ID))
		}
		if !data.Page.PageInfo.HasNextPage {
			break
		}
	}
	return ids, nil
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
		Status  int    `json:"status"`
	} `json:"errors"`
}

func (c *Client) query(ctx context.Context, query string, vars map[string]any, out any) error {
	body, err := json.Marshal(graphQLRequest{Query: query, Variables: vars})
	if err != nil {
		return fmt.Errorf("error encoding query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("error making request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return fmt.Errorf("error reading response: %w", err)
	}

	var gr graphQLResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return fmt.Errorf("API returned status code %d", resp.StatusCode)
		}
		return fmt.Errorf("invalid JSON response: %w", err)
	}
	if len(gr.Errors) > 0 {
		if gr.Errors[0].Status == http.StatusNotFound {
			return ErrUserNotFound
		}
		return fmt.Errorf("anilist error: %s", gr.Errors[0].Message)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("API returned status code %d", resp.StatusCode)
	}
	if len(gr.Data) == 0 || string(gr.Data) == "null" {
		return errors.New("anilist response has no data")
	}
	if err := json.Unmarshal(gr.Data, out); err != nil {
		return fmt.Errorf("invalid data payload: %w", err)
	}
	return nil
}
