package crm

import (
	"context"
	"net/url"
	"strconv"

	"github.com/stagecal/stagecal/internal/errors"
)

// ListDeals returns deals in listing order, optionally restricted to events
// starting inside r. Pages are followed while the CRM reports more records,
// up to the configured page cap.
func (c *Client) ListDeals(ctx context.Context, s Session, r *DateRange) ([]Deal, error) {
	deals := []Deal{}
	for page := 1; page <= c.maxPages; page++ {
		q := url.Values{}
		q.Set("fields", DealFields)
		q.Set("per_page", strconv.Itoa(c.perPage))
		q.Set("page", strconv.Itoa(page))
		if r != nil {
			q.Set("criteria", r.Criteria())
		}

		var resp listResponse[Deal]
		if err := c.getJSON(ctx, s, "list_deals", "/Deals", q, &resp); err != nil {
			return nil, err
		}
		deals = append(deals, resp.Data...)

		if !resp.Info.MoreRecords {
			return deals, nil
		}
	}

	c.logger.WarnWithContext(ctx, "deal listing truncated", "max_pages", c.maxPages, "count", len(deals))
	return deals, nil
}

// GetDeal fetches one deal by id. An empty answer is *errors.ErrNotFound.
func (c *Client) GetDeal(ctx context.Context, s Session, id string) (*Deal, error) {
	q := url.Values{}
	q.Set("fields", DealFields)

	var resp listResponse[Deal]
	if err := c.getJSON(ctx, s, "get_deal", "/Deals/"+url.PathEscape(id), q, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, &errors.ErrNotFound{Kind: "deal", ID: id}
	}
	deal := resp.Data[0]
	return &deal, nil
}
