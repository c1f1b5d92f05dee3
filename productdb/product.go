package productdb

// MacroElement names a macro nutrient. The string doubles as the column
// name in the macro_elements table.
type MacroElement string

const (
	Fat           MacroElement = "Fat"
	SaturatedFat  MacroElement = "Saturated Fat"
	Carbohydrates MacroElement = "Carbohydrates"
	Sugar         MacroElement = "Sugar"
	Protein       MacroElement = "Protein"
)

// MacroElements is the canonical column order for macro values. Every
// product carries all of them.
var MacroElements = []MacroElement{Fat, SaturatedFat, Carbohydrates, Sugar, Protein}

// MicroNutrient names a micro nutrient column. Micro values are optional.
type MicroNutrient string

const (
	Fiber   MicroNutrient = "Fiber"
	Zinc    MicroNutrient = "Zinc"
	Sodium  MicroNutrient = "Sodium"
	Alcohol MicroNutrient = "Alcohol"
)

// MicroNutrients is the canonical column order for micro values.
var MicroNutrients = []MicroNutrient{Fiber, Zinc, Sodium, Alcohol}

// Unit names a serving unit. Each unit occupies two columns in the
// allowed_units table: the amount and its divider.
type Unit string

const (
	UnitGram       Unit = "gram"
	UnitPiece      Unit = "piece"
	UnitCup        Unit = "cup"
	UnitTablespoon Unit = "tablespoon"
	UnitTeaspoon   Unit = "teaspoon"
	UnitBox        Unit = "box"
	UnitCustom     Unit = "custom"
)

// Units is the canonical column order for serving units.
var Units = []Unit{UnitGram, UnitPiece, UnitCup, UnitTablespoon, UnitTeaspoon, UnitBox, UnitCustom}

// UnitData describes one serving unit as amount/divider grams.
type UnitData struct {
	Amount  uint16
	Divider uint16
}

// Product is one catalogue entry. Macros carries a value for every
// MacroElement; Micros and Units only hold the entries the product has.
type Product struct {
	Name   string
	Brand  string // empty means no brand
	Macros map[MacroElement]float64
	Micros map[MicroNutrient]float64
	Units  map[Unit]UnitData
}
