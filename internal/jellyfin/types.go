package jellyfin

import "time"

// Jellyfin reports positions and runtimes in ticks of 100ns.
const ticksPerMillisecond = 10_000

// TicksToDuration converts server ticks to a time.Duration.
func TicksToDuration(ticks int64) time.Duration {
	return time.Duration(ticks/ticksPerMillisecond) * time.Millisecond
}

// DurationToTicks converts a time.Duration to server ticks.
func DurationToTicks(d time.Duration) int64 {
	return d.Milliseconds() * ticksPerMillisecond
}

type authenticateRequest struct {
	Username string `json:"Username"`
	Pw       string `json:"Pw"`
}

// AuthenticateResult is the server response to a successful sign-in.
type AuthenticateResult struct {
	User        User   `json:"User"`
	AccessToken string `json:"AccessToken"`
	ServerID    string `json:"ServerId"`
}

// User identifies a Jellyfin account.
type User struct {
	ID       string `json:"Id"`
	Name     string `json:"Name"`
	ServerID string `json:"ServerId"`
}

// PublicSystemInfo is what a server exposes without authentication.
type PublicSystemInfo struct {
	ID           string `json:"Id"`
	ServerName   string `json:"ServerName"`
	Version      string `json:"Version"`
	ProductName  string `json:"ProductName"`
	LocalAddress string `json:"LocalAddress"`
}

// SystemInfo extends PublicSystemInfo with fields that need a valid token.
type SystemInfo struct {
	PublicSystemInfo
	OperatingSystem    string `json:"OperatingSystem"`
	HasPendingRestart  bool   `json:"HasPendingRestart"`
	HasUpdateAvailable bool   `json:"HasUpdateAvailable"`
}

// Item is a library entry: a view, movie, series, season, or episode.
type Item struct {
	ID                string            `json:"Id"`
	Name              string            `json:"Name"`
	Type              string            `json:"Type"`
	CollectionType    string            `json:"CollectionType,omitempty"`
	Overview          string            `json:"Overview,omitempty"`
	SeriesID          string            `json:"SeriesId,omitempty"`
	SeriesName        string            `json:"SeriesName,omitempty"`
	SeasonID          string            `json:"SeasonId,omitempty"`
	SeasonName        string            `json:"SeasonName,omitempty"`
	IndexNumber       *int              `json:"IndexNumber,omitempty"`
	ParentIndexNumber *int              `json:"ParentIndexNumber,omitempty"`
	ProductionYear    *int              `json:"ProductionYear,omitempty"`
	PremiereDate      *time.Time        `json:"PremiereDate,omitempty"`
	RunTimeTicks      int64             `json:"RunTimeTicks,omitempty"`
	CommunityRating   *float64          `json:"CommunityRating,omitempty"`
	OfficialRating    string            `json:"OfficialRating,omitempty"`
	Genres            []string          `json:"Genres,omitempty"`
	MediaType         string            `json:"MediaType,omitempty"`
	Path              string            `json:"Path,omitempty"`
	UserData          *UserData         `json:"UserData,omitempty"`
	ImageTags         map[string]string `json:"ImageTags,omitempty"`
	BackdropImageTags []string          `json:"BackdropImageTags,omitempty"`
}

// RunTime reports the item duration.
func (i *Item) RunTime() time.Duration {
	return TicksToDuration(i.RunTimeTicks)
}

// UserData carries per-user playback state for an item.
type UserData struct {
	IsFavorite            bool       `json:"IsFavorite"`
	Played                bool       `json:"Played"`
	PlayCount             int        `json:"PlayCount"`
	PlaybackPositionTicks int64      `json:"PlaybackPositionTicks"`
	PlayedPercentage      *float64   `json:"PlayedPercentage,omitempty"`
	UnplayedItemCount     *int       `json:"UnplayedItemCount,omitempty"`
	LastPlayedDate        *time.Time `json:"LastPlayedDate,omitempty"`
}

// ItemsResult is the paged envelope item queries come back in.
type ItemsResult struct {
	Items            []Item `json:"Items"`
	TotalRecordCount int    `json:"TotalRecordCount"`
	StartIndex       int    `json:"StartIndex"`
}

// Play methods reported to the server.
const (
	PlayMethodDirectPlay = "DirectPlay"
	PlayMethodTranscode  = "Transcode"
)

// PlaybackState is the report body for the /Sessions/Playing routes.
type PlaybackState struct {
	ItemID        string `json:"ItemId"`
	MediaSourceID string `json:"MediaSourceId,omitempty"`
	PlaySessionID string `json:"PlaySessionId,omitempty"`
	PositionTicks int64  `json:"PositionTicks"`
	IsPaused      bool   `json:"IsPaused"`
	CanSeek       bool   `json:"CanSeek"`
	PlayMethod    string `json:"PlayMethod,omitempty"`
}
