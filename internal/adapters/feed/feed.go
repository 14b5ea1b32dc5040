package feed

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"relaybot/internal/core/domain"
	"strings"

	"github.com/rs/zerolog/log"
)

const maxFeedSize = 4 << 20

var (
	ErrNoItems    = errors.New("feed has no items")
	ErrInvalidXML = errors.New("invalid XML in feed")
)

// Reader fetches RSS 2.0 documents over HTTP.
type Reader struct {
	client *http.Client
}

func NewReader(client *http.Client) *Reader {
	if client == nil {
		client = &http.Client{}
	}

	return &Reader{client: client}
}

// Latest returns the first item of the feed's channel.
func (r *Reader) Latest(ctx context.Context, url string) (domain.FeedItem, error) {
	buf, err := r.Download(ctx, url)
	if err != nil {
		return domain.FeedItem{}, err
	}

	item, err := ParseLatest(buf)
	if err != nil {
		log.Warn().Err(err).Str("url", url).Msg("could not parse feed")
		return domain.FeedItem{}, err
	}

	return item, nil
}

// Download returns the body of a successful GET on url.
func (r *Reader) Download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		err = fmt.Errorf("error creating request %w", err)
		log.Error().Err(err).Str("url", url).Send()
		return nil, err
	}

	res, err := r.client.Do(req)
	if err != nil {
		err = fmt.Errorf("error executing request %w", err)
		log.Error().Err(err).Str("url", url).Send()
		return nil, err
	}
	defer res.Body.Close()

	log.Info().Str("url", url).Int("status", res.StatusCode).Msg("checked feed")

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status code is not 200 OK: %d", res.StatusCode)
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, maxFeedSize))
	if err != nil {
		err = fmt.Errorf("error reading response %w", err)
		log.Error().Err(err).Str("url", url).Send()
		return nil, err
	}

	return buf, nil
}

type rssDocument struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	PubDate     string `xml:"pubDate"`
	Description string `xml:"description"`
	GUID        string `xml:"guid"`
}

// ParseLatest decodes an RSS 2.0 document and returns its first item.
func ParseLatest(data []byte) (domain.FeedItem, error) {
	var doc rssDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return domain.FeedItem{}, fmt.Errorf("%w: %w", ErrInvalidXML, err)
	}
	if len(doc.Channel.Items) == 0 {
		return domain.FeedItem{}, ErrNoItems
	}

	item := doc.Channel.Items[0]
	return domain.FeedItem{
		Title:       strings.TrimSpace(item.Title),
		Link:        strings.TrimSpace(item.Link),
		PubDate:     strings.TrimSpace(item.PubDate),
		Description: strings.TrimSpace(item.Description),
		GUID:        strings.TrimSpace(item.GUID),
	}, nil
}
