// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package catalog defines the drink catalog domain types shared by the
// source adapter, the caches, and the persistent store.
package catalog

import (
	"strings"
	"time"
)

type Category string

const (
	CategoryBeer         Category = "beer"
	CategoryWine         Category = "wine"
	CategoryCocktail     Category = "cocktail"
	CategorySpirit       Category = "spirit"
	CategoryCider        Category = "cider"
	CategoryNonalcoholic Category = "nonalcoholic"
)

// Categories returns all known categories in partition order. The order
// matters to the source adapter, which fetches one partition per category.
func Categories() []Category {
	return []Category{
		CategoryBeer,
		CategoryWine,
		CategoryCocktail,
		CategorySpirit,
		CategoryCider,
		CategoryNonalcoholic,
	}
}

// ParseCategory maps free-form source text onto a known category.
// Unknown text returns ok=false; callers decide the fallback.
func ParseCategory(s string) (Category, bool) {
	switch Category(normalize(s)) {
	case CategoryBeer:
		return CategoryBeer, true
	case CategoryWine:
		return CategoryWine, true
	case CategoryCocktail:
		return CategoryCocktail, true
	case CategorySpirit:
		return CategorySpirit, true
	case CategoryCider:
		return CategoryCider, true
	case CategoryNonalcoholic:
		return CategoryNonalcoholic, true
	}
	return "", false
}

type Flavor string

const (
	FlavorBitter Flavor = "bitter"
	FlavorSweet  Flavor = "sweet"
	FlavorSour   Flavor = "sour"
	FlavorDry    Flavor = "dry"
	FlavorFruity Flavor = "fruity"
	FlavorSmoky  Flavor = "smoky"
	FlavorSpicy  Flavor = "spicy"
	FlavorCrisp  Flavor = "crisp"
	FlavorRich   Flavor = "rich"
	FlavorFloral Flavor = "floral"
	FlavorHerbal Flavor = "herbal"
)

func ParseFlavor(s string) (Flavor, bool) {
	switch f := Flavor(normalize(s)); f {
	case FlavorBitter, FlavorSweet, FlavorSour, FlavorDry, FlavorFruity,
		FlavorSmoky, FlavorSpicy, FlavorCrisp, FlavorRich, FlavorFloral,
		FlavorHerbal:
		return f, true
	}
	return "", false
}

type Occasion string

const (
	OccasionCasual      Occasion = "casual"
	OccasionCelebration Occasion = "celebration"
	OccasionDate        Occasion = "date"
	OccasionBusiness    Occasion = "business"
	OccasionRelaxing    Occasion = "relaxing"
)

func ParseOccasion(s string) (Occasion, bool) {
	switch o := Occasion(normalize(s)); o {
	case OccasionCasual, OccasionCelebration, OccasionDate,
		OccasionBusiness, OccasionRelaxing:
		return o, true
	}
	return "", false
}

// Item is one catalog entry. ID is unique within a sync generation and
// is the only identity the store keys on.
type Item struct {
	ID          string
	Name        string
	Category    Category
	Description string
	Ingredients []string
	Strength    float64
	Flavors     []Flavor
	Occasions   []Occasion
	PriceCents  int64
	Featured    bool
	Available   bool
	UpdatedAt   time.Time
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
