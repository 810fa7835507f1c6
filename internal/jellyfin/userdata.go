package jellyfin

import (
	"context"
	"fmt"
)

// SetFavorite marks or unmarks an item as a favorite and returns the
// updated per-user state.
func (c *Client) SetFavorite(ctx context.Context, userID, itemID string, favorite bool) (*UserData, error) {
	method := "POST"
	if !favorite {
		method = "DELETE"
	}

	var data UserData
	if err := c.do(ctx, method, fmt.Sprintf("/Users/%s/FavoriteItems/%s", userID, itemID), nil, nil, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// SetPlayed marks or unmarks an item as played and returns the updated
// per-user state.
func (c *Client) SetPlayed(ctx context.Context, userID, itemID string, played bool) (*UserData, error) {
	method := "POST"
	if !played {
		method = "DELETE"
	}

	var data UserData
	if err := c.do(ctx, method, fmt.Sprintf("/Users/%s/PlayedItems/%s", userID, itemID), nil, nil, &data); err != nil {
		return nil, err
	}
	return &data, nil
}
