package model

import (
	"time"
)

// Recipe is a named dish with an image and categorical tags.
type Recipe struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"size:100;not null"`
	Image     string    `json:"image" gorm:"size:255"` // Storage reference, not a URL
	Cuisine   Cuisine   `json:"cuisine" gorm:"type:varchar(3);not null;default:'Oth';index"`
	Meal      Meal      `json:"meal" gorm:"type:varchar(3);not null;default:'Oth';index"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	CookedAt []CookedAt `json:"cooked_at,omitempty" gorm:"foreignKey:RecipeID"`
}

// AverageRating returns the mean rating over loaded cooked events, or 0 when
// the recipe has never been cooked.
func (r *Recipe) AverageRating() float64 {
	if len(r.CookedAt) == 0 {
		return 0
	}
	total := 0
	for _, c := range r.CookedAt {
		total += c.Rating
	}
	return float64(total) / float64(len(r.CookedAt))
}

// LastCooked returns the most recent cooked date among loaded events.
func (r *Recipe) LastCooked() (time.Time, bool) {
	var last time.Time
	for _, c := range r.CookedAt {
		if c.Date.After(last) {
			last = c.Date
		}
	}
	return last, !last.IsZero()
}
