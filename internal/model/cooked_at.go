package model

import "time"

const (
	// MinRating is the lowest score a cooked event can carry.
	MinRating = 1
	// MaxRating is the highest score a cooked event can carry.
	MaxRating = 5
)

// DateLayout is the calendar-date format used in forms and JSON.
const DateLayout = "2006-01-02"

// CookedAt records one occasion a recipe was prepared and how it was rated.
// A CookedAt cannot outlive its recipe.
type CookedAt struct {
	ID       uint      `json:"id" gorm:"primaryKey"`
	Date     time.Time `json:"date" gorm:"type:date;not null;index"`
	Rating   int       `json:"rating" gorm:"not null"`
	RecipeID uint      `json:"recipe_id" gorm:"not null;index"`

	Recipe *Recipe `json:"-" gorm:"foreignKey:RecipeID;constraint:OnDelete:CASCADE"`
}

// TableName overrides GORM's pluralised default (cooked_ats).
func (CookedAt) TableName() string {
	return "cooked_at"
}
