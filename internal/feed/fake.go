package feed

import (
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/shopspring/decimal"
)

// Generator produces synthetic aggregator feeds for seeding and tests.
// The same seed always yields the same feed.
type Generator struct {
	faker     *gofakeit.Faker
	accountID string
}

// NewGenerator creates a generator seeded with seed.
func NewGenerator(seed int64) *Generator {
	f := gofakeit.New(seed)
	return &Generator{
		faker:     f,
		accountID: fmt.Sprintf("%d", f.Number(100000, 999999)),
	}
}

// Subscription is a recurring charge the generator emits once per month.
type Subscription struct {
	Description string
	Amount      decimal.Decimal
}

// Subscriptions returns n random subscriptions.
func (g *Generator) Subscriptions(n int) []Subscription {
	subs := make([]Subscription, 0, n)
	for i := 0; i < n; i++ {
		subs = append(subs, Subscription{
			Description: g.faker.Company() + " Subscription",
			Amount:      decimal.NewFromFloat(g.faker.Price(3, 60)).Round(2),
		})
	}
	return subs
}

// Feed emits one record per subscription per month starting at start, with
// occasional one-character description drift, followed by noise one-off purchases.
func (g *Generator) Feed(subs []Subscription, months, noise int, start time.Time) []Record {
	var records []Record

	for m := 0; m < months; m++ {
		for _, s := range subs {
			desc := s.Description
			if g.faker.Number(0, 3) == 0 {
				desc = g.drift(desc)
			}
			records = append(records, Record{
				ExternalID:  g.faker.UUID(),
				Description: desc,
				Amount:      decimal.NewNullDecimal(s.Amount),
				Date:        start.AddDate(0, m, g.faker.Number(0, 3)),
				AccountID:   g.accountID,
			})
		}
	}

	end := start.AddDate(0, months, 0)
	for i := 0; i < noise; i++ {
		records = append(records, Record{
			ExternalID:  g.faker.UUID(),
			Description: g.faker.Company() + " " + g.faker.BuzzWord(),
			Amount:      decimal.NewNullDecimal(decimal.NewFromFloat(g.faker.Price(1, 500)).Round(2)),
			Date:        g.faker.DateRange(start, end),
			AccountID:   g.accountID,
		})
	}

	return records
}

// drift deletes one character, like a processor truncating or mangling a memo.
func (g *Generator) drift(s string) string {
	r := []rune(s)
	if len(r) < 2 {
		return s
	}
	i := g.faker.Number(0, len(r)-1)
	return string(append(r[:i:i], r[i+1:]...))
}
