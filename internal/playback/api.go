package playback

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/zmb3/spotify/v2"
)

// DefaultBaseURL is the Spotify Web API root.
const DefaultBaseURL = "https://api.spotify.com/v1/"

// Device is the active device as reported by the current-playback endpoint.
// Volume is nil when the device does not report one.
type Device struct {
	ID     string
	Name   string
	Volume *int
}

// API is the production Player. Volume changes and device listing go through the embedded
// *spotify.Client; the active device is read here because the library decodes a null
// volume_percent as 0.
type API struct {
	*spotify.Client

	http    *http.Client
	baseURL string
}

// NewAPI returns a Player that sends requests with httpClient, usually an oauth2 client.
func NewAPI(httpClient *http.Client, baseURL string) *API {
	return &API{
		Client:  spotify.New(httpClient, spotify.WithBaseURL(baseURL)),
		http:    httpClient,
		baseURL: baseURL,
	}
}

type playbackResponse struct {
	Device struct {
		ID     string   `json:"id"`
		Name   string   `json:"name"`
		Volume *float64 `json:"volume_percent"`
	} `json:"device"`
}

// CurrentDevice returns the device of the current playback. No playback at all yields a
// Device with an empty ID.
func (a *API) CurrentDevice(ctx context.Context) (Device, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"me/player", nil)
	if err != nil {
		return Device{}, err
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return Device{}, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNoContent:
		return Device{}, nil
	case resp.StatusCode != http.StatusOK:
		return Device{}, decodeError(resp)
	}

	var body playbackResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Device{}, fmt.Errorf("decode playback: %w", err)
	}

	d := Device{ID: body.Device.ID, Name: body.Device.Name}
	if body.Device.Volume != nil {
		v := int(*body.Device.Volume)
		d.Volume = &v
	}
	return d, nil
}

// decodeError turns an error response into a spotify.Error, like the library does.
func decodeError(resp *http.Response) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read error response: %w", err)
	}

	var e struct {
		E spotify.Error `json:"error"`
	}
	if err := json.Unmarshal(data, &e); err != nil || e.E.Message == "" {
		e.E.Message = fmt.Sprintf("spotify: unexpected HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	if e.E.Status == 0 {
		e.E.Status = resp.StatusCode
	}
	return e.E
}
