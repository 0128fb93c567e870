package model

// Cuisine is the three-letter cuisine category stored on a recipe.
type Cuisine string

const (
	CuisineIndian   Cuisine = "Ind"
	CuisineChinese  Cuisine = "Chi"
	CuisineItalian  Cuisine = "Ita"
	CuisineMexican  Cuisine = "Mex"
	CuisineThai     Cuisine = "Tha"
	CuisineJapanese Cuisine = "Jap"
	CuisineAmerican Cuisine = "Ame"
	CuisineFrench   Cuisine = "Fre"
	CuisineOther    Cuisine = "Oth"
)

// Meal is the three-letter meal category stored on a recipe.
type Meal string

const (
	MealBreakfast Meal = "Bre"
	MealLunch     Meal = "Lun"
	MealDinner    Meal = "Din"
	MealSnack     Meal = "Sna"
	MealDessert   Meal = "Des"
	MealOther     Meal = "Oth"
)

// Choice pairs a stored code with the label shown in forms.
type Choice struct {
	Value string
	Label string
}

// CuisineChoices lists the cuisines in display order.
var CuisineChoices = []Choice{
	{string(CuisineIndian), "Indian"},
	{string(CuisineChinese), "Chinese"},
	{string(CuisineItalian), "Italian"},
	{string(CuisineMexican), "Mexican"},
	{string(CuisineThai), "Thai"},
	{string(CuisineJapanese), "Japanese"},
	{string(CuisineAmerican), "American"},
	{string(CuisineFrench), "French"},
	{string(CuisineOther), "Other"},
}

// MealChoices lists the meals in display order.
var MealChoices = []Choice{
	{string(MealBreakfast), "Breakfast"},
	{string(MealLunch), "Lunch"},
	{string(MealDinner), "Dinner"},
	{string(MealSnack), "Snack"},
	{string(MealDessert), "Dessert"},
	{string(MealOther), "Other"},
}

// Valid reports whether c is one of the known cuisine codes.
func (c Cuisine) Valid() bool {
	return lookup(CuisineChoices, string(c)) != ""
}

// Label returns the display name, or the raw code when unknown.
func (c Cuisine) Label() string {
	if l := lookup(CuisineChoices, string(c)); l != "" {
		return l
	}
	return string(c)
}

// Valid reports whether m is one of the known meal codes.
func (m Meal) Valid() bool {
	return lookup(MealChoices, string(m)) != ""
}

// Label returns the display name, or the raw code when unknown.
func (m Meal) Label() string {
	if l := lookup(MealChoices, string(m)); l != "" {
		return l
	}
	return string(m)
}

func lookup(choices []Choice, value string) string {
	for _, c := range choices {
		if c.Value == value {
			return c.Label
		}
	}
	return ""
}
