package models

import (
	"time"
)

// DefaultCategory is used when a candidate carries no usable heading
const DefaultCategory = "General"

// MenuItem is a deduplicated, sellable catalog entry
type MenuItem struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Category    string  `json:"category"`
}

// MenuCatalog is the structured menu of one restaurant
type MenuCatalog struct {
	RestaurantName string     `json:"restaurantName"`
	RestaurantURL  string     `json:"restaurantUrl"`
	ScrapedAt      time.Time  `json:"scrapedAt"`
	ItemCount      int        `json:"itemCount"`
	Items          []MenuItem `json:"items"`
}

// FindItem returns the catalog entry with the given id
func (c *MenuCatalog) FindItem(id string) (MenuItem, bool) {
	if c == nil {
		return MenuItem{}, false
	}
	for _, item := range c.Items {
		if item.ID == id {
			return item, true
		}
	}
	return MenuItem{}, false
}

// MenuCandidate is an unclassified bundle of text fragments collected from one DOM node.
// The fields are sourced independently and may contradict each other.
type MenuCandidate struct {
	NameText        string `json:"nameText"`
	DescriptionText string `json:"descriptionText"`
	PriceText       string `json:"priceText"`
	CategoryTitle   string `json:"categoryTitle"`
	RawText         string `json:"rawText"`
	NestedItems     int    `json:"nestedItems,omitempty"`
}

// MenuItemDraft is an accepted candidate before deduplication
type MenuItemDraft struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Category    string  `json:"category"`
}

// RestaurantMeta identifies the restaurant a set of candidates was collected from
type RestaurantMeta struct {
	Name string `json:"restaurantName"`
	URL  string `json:"restaurantUrl"`
}

// CandidateBundle is what the browser collaborator returns for one menu scan
type CandidateBundle struct {
	RestaurantName string          `json:"restaurantName"`
	Candidates     []MenuCandidate `json:"candidates"`
}
