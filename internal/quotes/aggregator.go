package quotes

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const defaultVenueTimeout = 8 * time.Second

var hundred = decimal.NewFromInt(100)

// Aggregator fans a quote request out to every configured venue in parallel.
// One venue failing or timing out never fails the aggregate: its slot is nil
// and it is excluded from spread math.
type Aggregator struct {
	venues  []Venue
	timeout time.Duration
}

func NewAggregator(venues []Venue, timeout time.Duration) *Aggregator {
	if timeout <= 0 {
		timeout = defaultVenueTimeout
	}
	return &Aggregator{venues: venues, timeout: timeout}
}

// Venues returns the configured venue names in order.
func (a *Aggregator) Venues() []string {
	names := make([]string, len(a.venues))
	for i, v := range a.venues {
		names[i] = v.Name()
	}
	return names
}

// Collect queries all venues in parallel. The result is index-aligned with
// the venue list; absent quotes are nil.
func (a *Aggregator) Collect(ctx context.Context, pair string, amount decimal.Decimal) []*Quote {
	results := make([]*Quote, len(a.venues))
	var wg sync.WaitGroup

	for i, venue := range a.venues {
		wg.Add(1)
		go func(i int, venue Venue) {
			defer wg.Done()
			venueCtx, cancel := context.WithTimeout(ctx, a.timeout)
			defer cancel()

			quote, err := venue.Quote(venueCtx, pair, amount)
			if err != nil {
				log.Warnf("quote from %s for %s unavailable: %v", venue.Name(), pair, err)
				return
			}
			results[i] = quote
		}(i, venue)
	}

	wg.Wait()
	return results
}

// Spread is the pairwise percentage spread (rateA - rateB) / rateB * 100.
func Spread(rateA, rateB decimal.Decimal) decimal.Decimal {
	if rateB.IsZero() {
		return decimal.Zero
	}
	return rateA.Sub(rateB).Div(rateB).Mul(hundred)
}

// Best picks the cheapest venue to buy on and the richest to sell on from
// the present quotes, with the spread between them. Requires at least two
// live quotes.
func Best(collected []*Quote) (buy, sell *Quote, spreadPct decimal.Decimal, err error) {
	var live []*Quote
	for _, q := range collected {
		if q != nil {
			live = append(live, q)
		}
	}
	if len(live) < 2 {
		return nil, nil, decimal.Zero, fmt.Errorf("need quotes from at least two venues, got %d", len(live))
	}

	buy, sell = live[0], live[0]
	for _, q := range live[1:] {
		if q.Rate.LessThan(buy.Rate) {
			buy = q
		}
		if q.Rate.GreaterThan(sell.Rate) {
			sell = q
		}
	}
	return buy, sell, Spread(sell.Rate, buy.Rate), nil
}
