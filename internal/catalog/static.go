// Package catalog supplies product and variant data to the cart.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"

	"github.com/foodsafe/storefront/internal/cart"
)

// Variant is a purchasable option of a product. Prices are ex-tax in the
// canonical currency.
type Variant struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	Price         decimal.Decimal  `json:"price"`
	PricePerLabel *decimal.Decimal `json:"pricePerLabel,omitempty"`
}

// Product groups variants.
type Product struct {
	ID           string    `json:"id"`
	Slug         string    `json:"slug"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	Image        string    `json:"image,omitempty"`
	CategoryTags []string  `json:"categoryTags,omitempty"`
	Variants     []Variant `json:"variants"`
}

func (v Variant) clone() Variant {
	v.PricePerLabel = cloneDecimal(v.PricePerLabel)
	return v
}

func (p Product) clone() Product {
	p.CategoryTags = slices.Clone(p.CategoryTags)
	vs := make([]Variant, len(p.Variants))
	for i, v := range p.Variants {
		vs[i] = v.clone()
	}
	p.Variants = vs
	return p
}

func cloneDecimal(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	out := *d
	return &out
}

// rawVariant mirrors the file format; prices are read as text to keep exact
// decimals.
type rawVariant struct {
	ID            string `koanf:"id"`
	Name          string `koanf:"name"`
	Price         string `koanf:"price"`
	PricePerLabel string `koanf:"pricePerLabel"`
}

type rawProduct struct {
	ID           string       `koanf:"id"`
	Slug         string       `koanf:"slug"`
	Name         string       `koanf:"name"`
	Description  string       `koanf:"description"`
	Image        string       `koanf:"image"`
	CategoryTags []string     `koanf:"categoryTags"`
	Variants     []rawVariant `koanf:"variants"`
}

// ErrProductNotFound is returned by ProductBySlug for unknown slugs.
var ErrProductNotFound = errors.New("product not found")

// Static is an immutable in-memory catalog.
type Static struct {
	products []Product
	bySlug   map[string]int
	variants map[string]variantRef
}

type variantRef struct {
	product int
	variant int
}

// LoadFile reads a JSON catalog of the form {"products":[...]}.
func LoadFile(path string) (*Static, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), json.Parser()); err != nil {
		return nil, fmt.Errorf("load catalog %s: %w", path, err)
	}
	var raw []rawProduct
	if err := k.Unmarshal("products", &raw); err != nil {
		return nil, fmt.Errorf("decode catalog %s: %w", path, err)
	}
	products := make([]Product, 0, len(raw))
	for _, rp := range raw {
		p := Product{
			ID:           rp.ID,
			Slug:         rp.Slug,
			Name:         rp.Name,
			Description:  rp.Description,
			Image:        rp.Image,
			CategoryTags: rp.CategoryTags,
		}
		for _, rv := range rp.Variants {
			price, err := decimal.NewFromString(strings.TrimSpace(rv.Price))
			if err != nil {
				return nil, fmt.Errorf("variant %s: price %q: %w", rv.ID, rv.Price, err)
			}
			v := Variant{ID: rv.ID, Name: rv.Name, Price: price}
			if s := strings.TrimSpace(rv.PricePerLabel); s != "" {
				ppl, err := decimal.NewFromString(s)
				if err != nil {
					return nil, fmt.Errorf("variant %s: pricePerLabel %q: %w", rv.ID, s, err)
				}
				v.PricePerLabel = &ppl
			}
			p.Variants = append(p.Variants, v)
		}
		products = append(products, p)
	}
	return New(products)
}

// New validates products and indexes them. Variant ids must be unique and
// prices non-negative.
func New(products []Product) (*Static, error) {
	s := &Static{
		products: slices.Clone(products),
		bySlug:   make(map[string]int, len(products)),
		variants: make(map[string]variantRef),
	}
	for pi, p := range s.products {
		if p.ID == "" || p.Slug == "" {
			return nil, fmt.Errorf("catalog: product %d missing id or slug", pi)
		}
		if _, dup := s.bySlug[p.Slug]; dup {
			return nil, fmt.Errorf("catalog: duplicate slug %q", p.Slug)
		}
		s.bySlug[p.Slug] = pi
		for vi, v := range p.Variants {
			if v.ID == "" {
				return nil, fmt.Errorf("catalog: product %s has a variant without id", p.ID)
			}
			if v.Price.IsNegative() {
				return nil, fmt.Errorf("catalog: variant %s has negative price", v.ID)
			}
			if _, dup := s.variants[v.ID]; dup {
				return nil, fmt.Errorf("catalog: duplicate variant id %q", v.ID)
			}
			s.variants[v.ID] = variantRef{product: pi, variant: vi}
		}
	}
	return s, nil
}

// Products lists the catalog in file order. Callers get their own copies.
func (s *Static) Products() []Product {
	out := make([]Product, len(s.products))
	for i, p := range s.products {
		out[i] = p.clone()
	}
	return out
}

// ProductBySlug returns a single product.
func (s *Static) ProductBySlug(slug string) (Product, error) {
	i, ok := s.bySlug[slug]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	return s.products[i].clone(), nil
}

// Variant implements cart.Catalog.
func (s *Static) Variant(_ context.Context, variantID string) (cart.LineItem, error) {
	ref, ok := s.variants[variantID]
	if !ok {
		return cart.LineItem{}, fmt.Errorf("%w: %s", cart.ErrVariantNotFound, variantID)
	}
	p := s.products[ref.product]
	v := p.Variants[ref.variant]
	return cart.LineItem{
		ProductID:     p.ID,
		ProductName:   p.Name,
		ProductImage:  p.Image,
		VariantID:     v.ID,
		VariantName:   v.Name,
		UnitPrice:     v.Price,
		Quantity:      1,
		PricePerLabel: cloneDecimal(v.PricePerLabel),
		CategoryTags:  slices.Clone(p.CategoryTags),
	}, nil
}
