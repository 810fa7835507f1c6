package jellyfin

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// ItemsOptions narrows an item query. Zero values are left out of the
// request so the server applies its defaults.
type ItemsOptions struct {
	ParentID         string
	IncludeItemTypes []string
	Recursive        bool
	SortBy           string
	SortOrder        string
	StartIndex       int
	Limit            int
	SearchTerm       string
	Filters          []string
	Fields           []string
}

func (o ItemsOptions) query() url.Values {
	q := url.Values{}
	if o.ParentID != "" {
		q.Set("ParentId", o.ParentID)
	}
	if len(o.IncludeItemTypes) > 0 {
		q.Set("IncludeItemTypes", strings.Join(o.IncludeItemTypes, ","))
	}
	if o.Recursive {
		q.Set("Recursive", "true")
	}
	if o.SortBy != "" {
		q.Set("SortBy", o.SortBy)
	}
	if o.SortOrder != "" {
		q.Set("SortOrder", o.SortOrder)
	}
	if o.StartIndex > 0 {
		q.Set("StartIndex", fmt.Sprintf("%d", o.StartIndex))
	}
	if o.Limit > 0 {
		q.Set("Limit", fmt.Sprintf("%d", o.Limit))
	}
	if o.SearchTerm != "" {
		q.Set("SearchTerm", o.SearchTerm)
	}
	if len(o.Filters) > 0 {
		q.Set("Filters", strings.Join(o.Filters, ","))
	}
	if len(o.Fields) > 0 {
		q.Set("Fields", strings.Join(o.Fields, ","))
	}
	return q
}

// Views lists the user's top level library views.
func (c *Client) Views(ctx context.Context, userID string) (*ItemsResult, error) {
	var result ItemsResult
	if err := c.do(ctx, "GET", fmt.Sprintf("/Users/%s/Views", userID), nil, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Items queries the user's library.
func (c *Client) Items(ctx context.Context, userID string, opts ItemsOptions) (*ItemsResult, error) {
	var result ItemsResult
	if err := c.do(ctx, "GET", fmt.Sprintf("/Users/%s/Items", userID), opts.query(), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ItemByID fetches a single item with the user's playback state attached.
func (c *Client) ItemByID(ctx context.Context, userID, itemID string) (*Item, error) {
	var item Item
	if err := c.do(ctx, "GET", fmt.Sprintf("/Users/%s/Items/%s", userID, itemID), nil, nil, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// Latest lists recently added items. The server returns a bare array here
// rather than the usual paged envelope.
func (c *Client) Latest(ctx context.Context, userID string, opts ItemsOptions) ([]Item, error) {
	var items []Item
	if err := c.do(ctx, "GET", fmt.Sprintf("/Users/%s/Items/Latest", userID), opts.query(), nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// Resume lists items with partial playback, most recent first.
func (c *Client) Resume(ctx context.Context, userID string, opts ItemsOptions) (*ItemsResult, error) {
	var result ItemsResult
	if err := c.do(ctx, "GET", fmt.Sprintf("/Users/%s/Items/Resume", userID), opts.query(), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// NextUp lists the next unwatched episode per series.
func (c *Client) NextUp(ctx context.Context, userID string, opts ItemsOptions) (*ItemsResult, error) {
	q := opts.query()
	q.Set("UserId", userID)

	var result ItemsResult
	if err := c.do(ctx, "GET", "/Shows/NextUp", q, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Seasons lists the seasons of a series.
func (c *Client) Seasons(ctx context.Context, userID, seriesID string) (*ItemsResult, error) {
	q := url.Values{}
	q.Set("UserId", userID)

	var result ItemsResult
	if err := c.do(ctx, "GET", fmt.Sprintf("/Shows/%s/Seasons", seriesID), q, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Episodes lists the episodes of a series, optionally scoped to one season.
func (c *Client) Episodes(ctx context.Context, userID, seriesID, seasonID string) (*ItemsResult, error) {
	q := url.Values{}
	q.Set("UserId", userID)
	if seasonID != "" {
		q.Set("SeasonId", seasonID)
	}

	var result ItemsResult
	if err := c.do(ctx, "GET", fmt.Sprintf("/Shows/%s/Episodes", seriesID), q, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
