// Package metadata resolves human readable titles for video references.
// Titles are display-only: nothing in playback or queue ordering waits on them.
package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/Atomars1/stroam-mvp/internal/playback"
)

var ErrNoTitle = errors.New("no title available")

type Resolver interface {
	Title(ctx context.Context, ref string) (string, error)
}

const DefaultNoEmbedURL = "https://noembed.com/embed"

// NoEmbed looks titles up through the noembed oEmbed proxy.
type NoEmbed struct {
	BaseURL string
	Client  *http.Client
}

func NewNoEmbed() *NoEmbed {
	return &NoEmbed{
		BaseURL: DefaultNoEmbedURL,
		Client:  &http.Client{Timeout: 5 * time.Second},
	}
}

type noEmbedResponse struct {
	Title string `json:"title"`
	Error string `json:"error"`
}

func (n *NoEmbed) Title(ctx context.Context, ref string) (string, error) {
	u := n.BaseURL + "?url=" + url.QueryEscape(playback.WatchURL(ref))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	resp, err := n.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("noembed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("noembed: status %d", resp.StatusCode)
	}
	var body noEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("noembed: decode: %w", err)
	}
	if body.Title == "" {
		return "", ErrNoTitle
	}
	return body.Title, nil
}
