package models

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Category identifies one of the external enrichment sources attached to a topic.
type Category string

const (
	CategoryBooks  Category = "books"  // written media
	CategoryVideos Category = "videos" // video
	CategoryWiki   Category = "wiki"   // encyclopedia
)

// Categories lists every enrichment category in display order.
var Categories = []Category{CategoryBooks, CategoryVideos, CategoryWiki}

// ParseCategory maps a user-supplied name onto a Category.
func ParseCategory(name string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "books", "book", "written-media":
		return CategoryBooks, nil
	case "videos", "video":
		return CategoryVideos, nil
	case "wiki", "wikipedia", "encyclopedia":
		return CategoryWiki, nil
	}
	return "", fmt.Errorf("unknown category %q", name)
}

// Topic is a persisted learning-content record.
type Topic struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Title         string             `bson:"title" json:"title"`
	TitleKey      string             `bson:"titleKey" json:"-"` // normalized title, unique
	Slug          string             `bson:"slug,omitempty" json:"slug"`
	Summary       string             `bson:"summary" json:"summary"`
	Sections      []Section          `bson:"sections" json:"sections"`
	RelatedTopics []string           `bson:"relatedTopics" json:"related_topics"`
	Enrichment    Enrichment         `bson:"enrichment" json:"enrichment"`
	CreatedAt     time.Time          `bson:"createdAt" json:"created_at"`
	UpdatedAt     time.Time          `bson:"updatedAt" json:"updated_at"`
}

// Clone returns a deep copy of t that shares no slices with it.
func (t *Topic) Clone() *Topic {
	c := *t
	c.Sections = make([]Section, len(t.Sections))
	for i, s := range t.Sections {
		c.Sections[i] = Section{Category: s.Category, Facts: slices.Clone(s.Facts)}
	}
	c.RelatedTopics = slices.Clone(t.RelatedTopics)
	for _, cat := range Categories {
		set := t.Enrichment.Get(cat)
		set.Items = cloneItems(set.Items)
		c.Enrichment.Set(cat, set)
	}
	return &c
}

func cloneItems(items []Item) []Item {
	if items == nil {
		return nil
	}
	out := make([]Item, len(items))
	for i, it := range items {
		it.Authors = slices.Clone(it.Authors)
		out[i] = it
	}
	return out
}

// Section is a named category of short fact statements.
type Section struct {
	Category string   `bson:"category" json:"category"`
	Facts    []string `bson:"facts" json:"facts"`
}

// Enrichment holds the three independently populated external result sets.
type Enrichment struct {
	Books  ItemSet `bson:"books" json:"books"`
	Videos ItemSet `bson:"videos" json:"videos"`
	Wiki   ItemSet `bson:"wiki" json:"wiki"`
}

// ItemSet is the persisted result list for one category.
type ItemSet struct {
	Items     []Item    `bson:"items" json:"items"`
	UpdatedAt time.Time `bson:"updatedAt,omitempty" json:"updated_at,omitempty"`
}

// Get returns the set stored for category.
func (e Enrichment) Get(c Category) ItemSet {
	switch c {
	case CategoryBooks:
		return e.Books
	case CategoryVideos:
		return e.Videos
	case CategoryWiki:
		return e.Wiki
	}
	return ItemSet{}
}

// Set replaces the set stored for category.
func (e *Enrichment) Set(c Category, set ItemSet) {
	switch c {
	case CategoryBooks:
		e.Books = set
	case CategoryVideos:
		e.Videos = set
	case CategoryWiki:
		e.Wiki = set
	}
}

// Item is a single external search result.
type Item struct {
	ID          string   `bson:"id,omitempty" json:"id,omitempty"`
	Title       string   `bson:"title" json:"title"`
	URL         string   `bson:"url" json:"url"`
	Description string   `bson:"description,omitempty" json:"description,omitempty"`
	Thumbnail   string   `bson:"thumbnail,omitempty" json:"thumbnail,omitempty"`
	Authors     []string `bson:"authors,omitempty" json:"authors,omitempty"`
	Channel     string   `bson:"channel,omitempty" json:"channel,omitempty"`
	Published   string   `bson:"published,omitempty" json:"published,omitempty"`
}

// Detail is a deep-dive answer for one fact or item.
type Detail struct {
	Caption string   `json:"caption"`
	Points  []string `json:"points"`
}

// Clone returns a copy of d with its own Points.
func (d Detail) Clone() Detail {
	d.Points = slices.Clone(d.Points)
	return d
}

// Markdown renders the detail as a heading followed by a bullet list.
func (d Detail) Markdown() string {
	var b strings.Builder
	b.WriteString("## ")
	b.WriteString(d.Caption)
	b.WriteString("\n\n")
	for i, p := range d.Points {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("- ")
		b.WriteString(p)
	}
	return b.String()
}

// Suggestion is a lightweight title/slug pair for search-as-you-type.
type Suggestion struct {
	Title string `bson:"title" json:"title"`
	Slug  string `bson:"slug" json:"slug"`
}

// NormalizeTitle returns the key used for case-insensitive title identity.
func NormalizeTitle(title string) string {
	return strings.ToLower(strings.Join(strings.Fields(title), " "))
}
