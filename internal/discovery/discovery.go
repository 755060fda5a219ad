// Package discovery resolves the ARSO service page into the list of station
// history feeds to collect.
package discovery

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"

	"github.com/couchcryptid/station-snapshot-collector/internal/adapter/httpfetch"
	"github.com/couchcryptid/station-snapshot-collector/internal/domain"
	"github.com/couchcryptid/station-snapshot-collector/internal/observability"
)

// Getter issues a single GET request.
type Getter interface {
	Get(ctx context.Context, rawURL string) (httpfetch.Response, error)
}

// Options describes where the station table lives and how to read it.
type Options struct {
	LandingURL      string
	FrameHostPrefix string
	FrameSelector   string
	TableSelector   string
	// TableIndex selects among the tables matching TableSelector, in document
	// order. The upstream page has no stable hook for the station table, so
	// this breaks whenever the page layout changes.
	TableIndex         int
	HeaderRows         int
	HistoryURLTemplate string
	LatestPattern      *regexp.Regexp
}

// Discoverer finds station feed links by scraping the landing page and its
// embedded frame.
type Discoverer struct {
	client  Getter
	opts    Options
	logger  *slog.Logger
	metrics *observability.Metrics
}

// New creates a Discoverer.
func New(client Getter, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Discoverer {
	return &Discoverer{client: client, opts: opts, logger: logger, metrics: metrics}
}

// Discover returns the station links in table row order. It is all or
// nothing: on any error the returned slice is nil.
func (d *Discoverer) Discover(ctx context.Context) ([]domain.StationLink, error) {
	landing, err := d.fetchDocument(ctx, d.opts.LandingURL)
	if err != nil {
		return nil, err
	}

	frame := landing.Find(d.opts.FrameSelector).First()
	if frame.Length() == 0 {
		return nil, &domain.MarkupError{URL: d.opts.LandingURL, Reason: fmt.Sprintf("no %q element", d.opts.FrameSelector)}
	}
	src := strings.TrimSpace(frame.AttrOr("src", ""))
	if src == "" {
		return nil, &domain.MarkupError{URL: d.opts.LandingURL, Reason: "frame has no src attribute"}
	}

	frameURL, err := resolve(d.opts.FrameHostPrefix, src)
	if err != nil {
		return nil, &domain.MarkupError{URL: d.opts.LandingURL, Reason: "resolve frame src", Err: err}
	}
	d.logger.Debug("following frame", "url", frameURL)

	frameDoc, err := d.fetchDocument(ctx, frameURL)
	if err != nil {
		return nil, err
	}

	rows, err := d.stationRows(frameURL, frameDoc)
	if err != nil {
		return nil, err
	}

	links := BuildStationLinks(rows, d.opts.LatestPattern, d.opts.HistoryURLTemplate)
	if dropped := len(rows) - len(links); dropped > 0 {
		d.metrics.RowsDropped.Add(float64(dropped))
		for _, row := range rows {
			if _, ok := rowLatestID(row, d.opts.LatestPattern); !ok {
				d.logger.Warn("dropping station row without identifier", "cells", row)
			}
		}
	}
	d.logger.Info("stations discovered", "count", len(links), "rows", len(rows))
	return links, nil
}

// fetchDocument GETs a required page and parses it.
func (d *Discoverer) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	resp, err := d.client.Get(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, &domain.FetchError{URL: pageURL, StatusCode: resp.StatusCode}
	}

	r, err := charset.NewReader(bytes.NewReader(resp.Body), resp.ContentType)
	if err != nil {
		return nil, &domain.MarkupError{URL: pageURL, Reason: "decode charset", Err: err}
	}
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, &domain.MarkupError{URL: pageURL, Reason: "parse html", Err: err}
	}
	return doc, nil
}

// stationRows selects the station table and returns the cell values of every
// row after the header rows.
func (d *Discoverer) stationRows(pageURL string, doc *goquery.Document) ([][]string, error) {
	tables := doc.Find(d.opts.TableSelector)
	if tables.Length() <= d.opts.TableIndex {
		return nil, &domain.MarkupError{
			URL:    pageURL,
			Reason: fmt.Sprintf("found %d %q tables, need index %d", tables.Length(), d.opts.TableSelector, d.opts.TableIndex),
		}
	}

	trs := tables.Eq(d.opts.TableIndex).Find("tr")
	if trs.Length() <= d.opts.HeaderRows {
		return nil, &domain.MarkupError{
			URL:    pageURL,
			Reason: fmt.Sprintf("station table has %d rows, expected more than %d header rows", trs.Length(), d.opts.HeaderRows),
		}
	}

	rows := make([][]string, 0, trs.Length()-d.opts.HeaderRows)
	trs.Slice(d.opts.HeaderRows, goquery.ToEnd).Each(func(_ int, tr *goquery.Selection) {
		rows = append(rows, rowValues(tr))
	})
	return rows, nil
}

// rowValues extracts one value per cell: a link's href (or its text when it
// has none), otherwise the cell text.
func rowValues(tr *goquery.Selection) []string {
	var values []string
	tr.Find("td").Each(func(_ int, td *goquery.Selection) {
		if a := td.Find("a").First(); a.Length() > 0 {
			if href, ok := a.Attr("href"); ok {
				values = append(values, href)
				return
			}
			values = append(values, strings.TrimSpace(a.Text()))
			return
		}
		values = append(values, strings.TrimSpace(td.Text()))
	})
	return values
}

// resolve turns a frame src into an absolute URL relative to prefix.
func resolve(prefix, src string) (string, error) {
	base, err := url.Parse(prefix)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(src)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}
