package crm

import (
	"context"
	"net/url"
	"strings"

	"github.com/stagecal/stagecal/internal/models"
	"golang.org/x/sync/errgroup"
)

// Enrich resolves the artist category and promoter contact of every deal.
// Lookups run concurrently, bounded by the configured limit, and the result
// is index-aligned with deals. A failed lookup never fails the batch: the
// affected fields become models.SentinelAccessDenied.
func (c *Client) Enrich(ctx context.Context, s Session, deals []Deal) []Enrichment {
	out := make([]Enrichment, len(deals))

	var g errgroup.Group
	g.SetLimit(c.concurrency)

	for i := range deals {
		g.Go(func() error {
			out[i].ArtistType = c.artistType(ctx, s, deals[i].Artist)
			return nil
		})
		g.Go(func() error {
			out[i].PromoterPhone, out[i].PromoterEmail = c.promoterContact(ctx, s, deals[i].Account)
			return nil
		})
	}
	_ = g.Wait()

	return out
}

func (c *Client) artistType(ctx context.Context, s Session, artist *Lookup) string {
	if artist == nil || artist.ID == "" {
		c.metrics.RecordEnrichment("artist_type", "unknown")
		return models.SentinelUnknown
	}

	q := url.Values{}
	q.Set("fields", "Tipo_de_Eventos")

	var resp listResponse[artistRecord]
	if err := c.getJSON(ctx, s, "get_artist", "/Artistas/"+url.PathEscape(artist.ID), q, &resp); err != nil {
		c.logger.WarnWithContext(ctx, "artist type lookup failed", "artist_id", artist.ID, "error", err)
		c.metrics.RecordEnrichment("artist_type", "denied")
		return models.SentinelAccessDenied
	}
	if len(resp.Data) == 0 {
		c.metrics.RecordEnrichment("artist_type", "unknown")
		return models.SentinelUnknown
	}

	c.metrics.RecordEnrichment("artist_type", "ok")
	return orUnknown(eventTypes(resp.Data[0].EventTypes))
}

func (c *Client) promoterContact(ctx context.Context, s Session, account *Lookup) (phone, email string) {
	if account == nil || account.ID == "" {
		c.metrics.RecordEnrichment("promoter_contact", "unknown")
		return models.SentinelUnknown, models.SentinelUnknown
	}

	q := url.Values{}
	q.Set("fields", "Tel_fono_Contratacion,Correo_Contratacion")

	var resp listResponse[accountRecord]
	if err := c.getJSON(ctx, s, "get_account", "/Accounts/"+url.PathEscape(account.ID), q, &resp); err != nil {
		c.logger.WarnWithContext(ctx, "promoter contact lookup failed", "account_id", account.ID, "error", err)
		c.metrics.RecordEnrichment("promoter_contact", "denied")
		return models.SentinelAccessDenied, models.SentinelAccessDenied
	}
	if len(resp.Data) == 0 {
		c.metrics.RecordEnrichment("promoter_contact", "unknown")
		return models.SentinelUnknown, models.SentinelUnknown
	}

	c.metrics.RecordEnrichment("promoter_contact", "ok")
	rec := resp.Data[0]
	return orUnknown(rec.Phone), orUnknown(rec.Email)
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return models.SentinelUnknown
	}
	return s
}
