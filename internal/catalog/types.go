package catalog

import (
	"sort"
	"strings"
	"time"
)

var (
	Categories = []string{"T-Shirts", "Polo", "Hoodies", "Sweatshirts", "Joggers", "Shorts", "Caps", "Jackets"}
	Colors     = []string{"White", "Black", "Navy", "Gray", "Red", "Blue", "Green", "Yellow", "Orange", "Pink", "Purple", "Brown", "Beige", "Maroon", "Teal", "Olive", "Cream", "Charcoal", "Sky Blue", "Burgundy"}
	Sizes      = []string{"XS", "S", "M", "L", "XL", "XXL", "3XL", "Free Size"}
)

// PricingTier is one bulk-pricing band of a product.
type PricingTier struct {
	Label     string  `json:"label" dynamodbav:"label"`
	Range     string  `json:"range" dynamodbav:"range"`
	UnitPrice float64 `json:"unitPrice" dynamodbav:"unit_price"`
}

type Product struct {
	ID                string        `json:"id" dynamodbav:"id"`
	Name              string        `json:"name" dynamodbav:"name"`
	Category          string        `json:"category" dynamodbav:"category"`
	Description       string        `json:"description" dynamodbav:"description"`
	Image             string        `json:"image" dynamodbav:"image"`
	Images            []string      `json:"images" dynamodbav:"images"`
	Colors            []string      `json:"colors" dynamodbav:"colors"`
	Sizes             []string      `json:"sizes" dynamodbav:"sizes"`
	BulkPricing       []PricingTier `json:"bulk_pricing" dynamodbav:"bulk_pricing"`
	ManufacturingTime int           `json:"manufacturing_time" dynamodbav:"manufacturing_time"`
	InStock           bool          `json:"in_stock" dynamodbav:"in_stock"`
	CreatedAt         time.Time     `json:"created_at" dynamodbav:"created_at,unixtime"`
}

// Tier returns the tier whose label matches exactly.
func (p *Product) Tier(label string) (PricingTier, bool) {
	for _, t := range p.BulkPricing {
		if t.Label == label {
			return t, true
		}
	}
	return PricingTier{}, false
}

// BasePrice is the first tier's unit price, or 0 without tiers.
func (p *Product) BasePrice() float64 {
	if len(p.BulkPricing) == 0 {
		return 0
	}
	return p.BulkPricing[0].UnitPrice
}

// ProductQuery mirrors the storefront's listing parameters.
type ProductQuery struct {
	Search   string
	Category string
	InStock  *bool
	MinPrice float64
	MaxPrice float64
	Sort     string // created_at | name | category
	Order    string // asc | desc
	Page     int
	Limit    int
}

// MaxPage bounds page numbers so offsets cannot overflow.
const MaxPage = 1 << 20

func (q ProductQuery) Normalize() ProductQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Page > MaxPage {
		q.Page = MaxPage
	}
	if q.Limit <= 0 {
		q.Limit = 20
	}
	if q.Limit > 100 {
		q.Limit = 100
	}
	switch q.Sort {
	case "name", "category", "created_at":
	default:
		q.Sort = "created_at"
	}
	if q.Order != "asc" {
		q.Order = "desc"
	}
	return q
}

// ProductPage is one page of a listing. Total counts matches before the
// price filter, which only thins the current page.
type ProductPage struct {
	Products   []Product `json:"products"`
	Total      int       `json:"total"`
	Page       int       `json:"page"`
	TotalPages int       `json:"totalPages"`
}

// Options is the fixed vocabulary offered to admin forms.
type Options struct {
	Categories []string `json:"categories"`
	Colors     []string `json:"colors"`
	Sizes      []string `json:"sizes"`
}

func DefaultOptions() Options {
	return Options{Categories: Categories, Colors: Colors, Sizes: Sizes}
}

// Matches reports whether p passes the search, category and stock filters.
func (q ProductQuery) Matches(p Product) bool {
	if q.Category != "" && p.Category != q.Category {
		return false
	}
	if q.InStock != nil && p.InStock != *q.InStock {
		return false
	}
	if q.Search != "" {
		needle := strings.ToLower(q.Search)
		if !strings.Contains(strings.ToLower(p.Name), needle) &&
			!strings.Contains(strings.ToLower(p.Category), needle) &&
			!strings.Contains(strings.ToLower(p.Description), needle) {
			return false
		}
	}
	return true
}

// FilterPrice drops products whose base price is outside [MinPrice, MaxPrice].
// Zero bounds are ignored.
func (q ProductQuery) FilterPrice(ps []Product) []Product {
	if q.MinPrice == 0 && q.MaxPrice == 0 {
		return ps
	}
	out := ps[:0:0]
	for _, p := range ps {
		price := p.BasePrice()
		if q.MinPrice != 0 && price < q.MinPrice {
			continue
		}
		if q.MaxPrice != 0 && price > q.MaxPrice {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Paginate filters, sorts and pages a full product set in process.
func Paginate(all []Product, q ProductQuery) *ProductPage {
	q = q.Normalize()

	matched := make([]Product, 0, len(all))
	for _, p := range all {
		if q.Matches(p) {
			matched = append(matched, p)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		less := lessBy(q.Sort, matched[i], matched[j])
		if q.Order == "asc" {
			return less
		}
		return lessBy(q.Sort, matched[j], matched[i])
	})

	total := len(matched)
	start := (q.Page - 1) * q.Limit // Page is capped by Normalize
	if start > total {
		start = total
	}
	end := start + q.Limit
	if end > total {
		end = total
	}
	return &ProductPage{
		Products:   q.FilterPrice(append([]Product{}, matched[start:end]...)),
		Total:      total,
		Page:       q.Page,
		TotalPages: (total + q.Limit - 1) / q.Limit,
	}
}

func lessBy(field string, a, b Product) bool {
	switch field {
	case "name":
		return a.Name < b.Name
	case "category":
		return a.Category < b.Category
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

// DistinctCategories returns the sorted set of categories in use.
func DistinctCategories(ps []Product) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, p := range ps {
		if p.Category == "" || seen[p.Category] {
			continue
		}
		seen[p.Category] = true
		out = append(out, p.Category)
	}
	sort.Strings(out)
	return out
}
