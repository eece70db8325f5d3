package crm

import (
	"context"
	"net/url"

	"github.com/stagecal/stagecal/internal/models"
	"golang.org/x/sync/errgroup"
)

// Master fetches the four lookup lists offered by the booking form. The
// calls run concurrently and any failure fails the whole request.
func (c *Client) Master(ctx context.Context, s Session) (*models.MasterData, error) {
	master := &models.MasterData{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		items, err := lookupList(gctx, c, s, "list_artists", "/Artistas", "Name", func(r artistRecord) models.LookupItem {
			return models.LookupItem{ID: r.ID, Name: r.Name}
		})
		master.Artists = items
		return err
	})
	g.Go(func() error {
		items, err := lookupList(gctx, c, s, "list_promoters", "/Accounts", "Account_Name", func(r accountRecord) models.LookupItem {
			return models.LookupItem{ID: r.ID, Name: r.AccountName}
		})
		master.Promoters = items
		return err
	})
	g.Go(func() error {
		items, err := lookupList(gctx, c, s, "list_venues", "/Recintos", "Name", func(r venueRecord) models.LookupItem {
			return models.LookupItem{ID: r.ID, Name: r.Name}
		})
		master.Venues = items
		return err
	})
	g.Go(func() error {
		items, err := lookupList(gctx, c, s, "list_cities", "/Recintos", "Localidad", func(r venueRecord) models.LookupItem {
			return models.LookupItem{ID: r.ID, Name: r.Locality}
		})
		master.Cities = items
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return master, nil
}

func lookupList[T any](ctx context.Context, c *Client, s Session, op, path, fields string, conv func(T) models.LookupItem) ([]models.LookupItem, error) {
	q := url.Values{}
	q.Set("fields", fields)

	var resp listResponse[T]
	if err := c.getJSON(ctx, s, op, path, q, &resp); err != nil {
		return nil, err
	}
	items := make([]models.LookupItem, 0, len(resp.Data))
	for _, r := range resp.Data {
		items = append(items, conv(r))
	}
	return items, nil
}
