package protocol

import "encoding/json"

// TrackInfo is the metadata a node attaches to every encoded track.
type TrackInfo struct {
	Identifier string  `json:"identifier"`
	IsSeekable bool    `json:"isSeekable"`
	Author     string  `json:"author"`
	Length     int64   `json:"length"`
	IsStream   bool    `json:"isStream"`
	Position   int64   `json:"position"`
	Title      string  `json:"title"`
	URI        *string `json:"uri"`
	ArtworkURL *string `json:"artworkUrl"`
	ISRC       *string `json:"isrc"`
	SourceName string  `json:"sourceName"`
}

// Track is a playable item. Encoded is the node's opaque handle; a track
// without one must be resolved before it can be played.
type Track struct {
	Encoded    string          `json:"encoded"`
	Info       TrackInfo       `json:"info"`
	PluginInfo json.RawMessage `json:"pluginInfo,omitempty"`
	UserData   json.RawMessage `json:"userData,omitempty"`
}

func (t Track) Resolved() bool {
	return t.Encoded != ""
}

type LoadType string

const (
	LoadTypeTrack    LoadType = "track"
	LoadTypePlaylist LoadType = "playlist"
	LoadTypeSearch   LoadType = "search"
	LoadTypeEmpty    LoadType = "empty"
	LoadTypeError    LoadType = "error"
)

type PlaylistInfo struct {
	Name          string `json:"name"`
	SelectedTrack int    `json:"selectedTrack"`
}

// Exception is the failure payload of load results and track exception
// events.
type Exception struct {
	Message  string `json:"message"`
	Severity string `json:"severity"`
	Cause    string `json:"cause"`
}

// LoadResult is the response of the loadtracks endpoint. Data depends on
// LoadType and is decoded lazily by Tracks.
type LoadResult struct {
	LoadType LoadType        `json:"loadType"`
	Data     json.RawMessage `json:"data"`
}

type playlistData struct {
	Info   PlaylistInfo `json:"info"`
	Tracks []Track      `json:"tracks"`
}

// Tracks returns the tracks carried by the result. Playlist results also
// return the playlist info.
func (r *LoadResult) Tracks() ([]Track, *PlaylistInfo, error) {
	switch r.LoadType {
	case LoadTypeTrack:
		var track Track
		if err := json.Unmarshal(r.Data, &track); err != nil {
			return nil, nil, err
		}
		return []Track{track}, nil, nil
	case LoadTypeSearch:
		var tracks []Track
		if err := json.Unmarshal(r.Data, &tracks); err != nil {
			return nil, nil, err
		}
		return tracks, nil, nil
	case LoadTypePlaylist:
		var playlist playlistData
		if err := json.Unmarshal(r.Data, &playlist); err != nil {
			return nil, nil, err
		}
		return playlist.Tracks, &playlist.Info, nil
	default:
		return nil, nil, nil
	}
}

// Exception returns the failure carried by an error result, or nil.
func (r *LoadResult) Exception() *Exception {
	if r.LoadType != LoadTypeError {
		return nil
	}
	var exception Exception
	if err := json.Unmarshal(r.Data, &exception); err != nil {
		return &Exception{Message: string(r.Data)}
	}
	return &exception
}
