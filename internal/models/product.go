package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Product is a catalog record read from the storefront's product corpus
type Product struct {
	ID          string    `json:"id" yaml:"id" validate:"required"`
	Name        string    `json:"name" yaml:"name" validate:"required"`
	Slug        string    `json:"slug" yaml:"slug"`
	Description string    `json:"description" yaml:"description"`
	Category    string    `json:"category" yaml:"category"`
	Brand       string    `json:"brand" yaml:"brand"`
	Tags        []string  `json:"tags" yaml:"tags"`
	Images      []string  `json:"images" yaml:"images"`
	Variants    []Variant `json:"variants" yaml:"variants" validate:"dive"`
}

// Variant is a purchasable size/color combination of a product
type Variant struct {
	ID       string  `json:"id" yaml:"id" validate:"required"`
	Size     string  `json:"size" yaml:"size"`
	Color    string  `json:"color" yaml:"color"`
	Price    float64 `json:"price" yaml:"price" validate:"gte=0"`
	Quantity int     `json:"quantity" yaml:"quantity" validate:"gte=0"`
	Image    string  `json:"image" yaml:"image"`
}

// Sizes returns the distinct variant sizes in catalog order
func (p Product) Sizes() []string {
	return distinct(p.Variants, func(v Variant) string { return v.Size })
}

// Colors returns the distinct variant colors in catalog order
func (p Product) Colors() []string {
	return distinct(p.Variants, func(v Variant) string { return v.Color })
}

// PriceRange returns the min and max variant price; ok is false without variants
func (p Product) PriceRange() (min, max float64, ok bool) {
	for i, v := range p.Variants {
		if i == 0 || v.Price < min {
			min = v.Price
		}
		if i == 0 || v.Price > max {
			max = v.Price
		}
	}
	return min, max, len(p.Variants) > 0
}

// InStock reports whether any variant has stock
func (p Product) InStock() bool {
	for _, v := range p.Variants {
		if v.Quantity > 0 {
			return true
		}
	}
	return false
}

// MainImage returns the first product or variant image
func (p Product) MainImage() string {
	if len(p.Images) > 0 {
		return p.Images[0]
	}
	for _, v := range p.Variants {
		if v.Image != "" {
			return v.Image
		}
	}
	return ""
}

func distinct(variants []Variant, field func(Variant) string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, v := range variants {
		value := field(v)
		if value == "" || seen[value] {
			continue
		}
		seen[value] = true
		out = append(out, value)
	}
	return out
}

// Proposition kinds stored in vector metadata
const (
	PropositionProductInfo = "product_info"
	PropositionVariantInfo = "variant_info"
)

// Proposition is an atomic, self-contained fact about a product or variant
type Proposition struct {
	ID       string                 `json:"id"`
	Text     string                 `json:"text"`
	Metadata map[string]interface{} `json:"metadata"`
}

// ProductRef is the user-facing product reference attached to answers.
// It is rebuilt from vector metadata without a catalog lookup.
type ProductRef struct {
	ID        string  `json:"_id"`
	Name      string  `json:"name"`
	Slug      string  `json:"urlSlug,omitempty"`
	Category  string  `json:"category,omitempty"`
	MinPrice  float64 `json:"minPrice"`
	MaxPrice  float64 `json:"maxPrice"`
	Image     string  `json:"mainImage,omitempty"`
	VariantID string  `json:"variantId,omitempty"`
}

// ProductMetadata builds the denormalized metadata stored with every proposition
func ProductMetadata(p Product, kind string) map[string]interface{} {
	min, max, _ := p.PriceRange()
	return map[string]interface{}{
		"type":         kind,
		"product_id":   p.ID,
		"product_name": p.Name,
		"slug":         p.Slug,
		"category":     p.Category,
		"brand":        p.Brand,
		"tags":         strings.Join(p.Tags, ","),
		"colors":       strings.Join(p.Colors(), ","),
		"sizes":        strings.Join(p.Sizes(), ","),
		"min_price":    min,
		"max_price":    max,
		"image":        p.MainImage(),
		"in_stock":     p.InStock(),
	}
}

// ProductRefFromMetadata reconstructs a ProductRef from proposition metadata
func ProductRefFromMetadata(meta map[string]interface{}) (ProductRef, bool) {
	id := MetaString(meta, "product_id")
	if id == "" {
		return ProductRef{}, false
	}
	return ProductRef{
		ID:        id,
		Name:      MetaString(meta, "product_name"),
		Slug:      MetaString(meta, "slug"),
		Category:  MetaString(meta, "category"),
		MinPrice:  MetaFloat(meta, "min_price"),
		MaxPrice:  MetaFloat(meta, "max_price"),
		Image:     MetaString(meta, "image"),
		VariantID: MetaString(meta, "variant_id"),
	}, true
}

// MetaString reads a string metadata value, tolerating non-string encodings
func MetaString(meta map[string]interface{}, key string) string {
	switch v := meta[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// MetaFloat reads a numeric metadata value
func MetaFloat(meta map[string]interface{}, key string) float64 {
	switch v := meta[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	default:
		return 0
	}
}

// FormatPrice renders a price the way the storefront shows it
func FormatPrice(v float64) string {
	s := strconv.FormatFloat(v, 'f', 0, 64)
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return "$" + b.String()
}
