package consumet

import "time"

// Episode is one entry of an episode list, already validated.
type Episode struct {
	Number      int
	Title       string
	Description string
	Image       string
	ReleasedAt  time.Time // zero when upstream did not say
}

// TitleInfo is the subset of title metadata the engine tracks.
type TitleInfo struct {
	ID            string
	Title         string
	Status        Status
	TotalEpisodes int
}

type Status string

const (
	StatusReleasing      Status = "RELEASING"
	StatusFinished       Status = "FINISHED"
	StatusNotYetReleased Status = "NOT_YET_RELEASED"
)

type episodeResponse struct {
	ID          string   `json:"id"`
	Title       *string  `json:"title"`
	Description *string  `json:"description"`
	Image       *string  `json:"image"`
	Number      *float64 `json:"number"`
	CreatedAt   *string  `json:"createdAt"`
	URL         string   `json:"url"`
}

type infoResponse struct {
	ID    string `json:"id"`
	Title struct {
		Romaji        string `json:"romaji"`
		English       string `json:"english"`
		Native        string `json:"native"`
		UserPreferred string `json:"userPreferred"`
	} `json:"title"`
	Status        string `json:"status"`
	TotalEpisodes *int   `json:"totalEpisodes"`
}
