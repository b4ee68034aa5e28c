package source

import (
	"bytes"
	"context"
	"strings"
	"time"

	"MarketPulse/internal/domain/models"
	xhttp "MarketPulse/pkg/http"
	"MarketPulse/pkg/logger"
	"MarketPulse/pkg/util"

	"github.com/PuerkitoBio/goquery"
)

// NewsSelectors are the CSS selectors used to pick fields out of the
// newswire page. Impact is an attribute name on the item node.
type NewsSelectors struct {
	Item     string
	Headline string
	Time     string
	Actual   string
	Forecast string
	Previous string
	Tag      string
	Impact   string
}

type NewsOptions struct {
	URL       string
	Timeout   time.Duration
	RateLimit float64
	UserAgent string
	Selectors NewsSelectors
}

// NewsScraper scrapes the financial newswire HTML page.
type NewsScraper struct {
	base
	sel NewsSelectors
}

func NewNewsScraper(opts NewsOptions, log *logger.Logger) *NewsScraper {
	if opts.Timeout <= 0 {
		opts.Timeout = 8 * time.Second
	}
	return &NewsScraper{
		base: newBase("news", opts.URL, opts.Timeout, opts.RateLimit, opts.UserAgent, log),
		sel:  opts.Selectors,
	}
}

func (s *NewsScraper) FetchNews(ctx context.Context) (items []models.RawNewsItem, err error) {
	var body []byte
	if err := s.fetch(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodGet,
		Headers: map[string]string{"Accept": "text/html"},
	}, &body); err != nil {
		return nil, err
	}

	defer s.guard(&err)
	return s.parse(body)
}

func (s *NewsScraper) parse(body []byte) ([]models.RawNewsItem, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, models.NewSourceError(models.KindParseError, s.name, "invalid html", err)
	}

	nodes := doc.Find(s.sel.Item)
	if nodes.Length() == 0 {
		return nil, models.NewSourceError(models.KindParseError, s.name, "no items matched "+s.sel.Item, nil)
	}

	items := make([]models.RawNewsItem, 0, nodes.Length())
	nodes.Each(func(_ int, n *goquery.Selection) {
		raw := models.RawNewsItem{
			Headline: util.CollapseSpace(n.Find(s.sel.Headline).First().Text()),
			Actual:   field(n, s.sel.Actual),
			Forecast: field(n, s.sel.Forecast),
			Previous: field(n, s.sel.Previous),
			Source:   s.name,
		}

		if t := n.Find(s.sel.Time).First(); t.Length() > 0 {
			raw.Time = t.AttrOr("datetime", strings.TrimSpace(t.Text()))
		}
		if s.sel.Impact != "" {
			raw.Impact = n.AttrOr(s.sel.Impact, "")
		}
		n.Find(s.sel.Tag).Each(func(_ int, tag *goquery.Selection) {
			if v := util.CollapseSpace(tag.Text()); v != "" {
				raw.Tags = append(raw.Tags, v)
			}
		})

		items = append(items, raw)
	})

	return items, nil
}

func field(n *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.TrimSpace(n.Find(selector).First().Text())
}
