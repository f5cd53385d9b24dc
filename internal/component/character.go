package component

// Class is the wire name of a character class.
type Class string

const (
	ClassMelee  Class = "melee"
	ClassCaster Class = "caster"
	ClassRanged Class = "ranged"
)

// Position is a point in world space. Y is height.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Stats is the character stat block. All values are non-negative and
// health/mana stay within [0, max].
type Stats struct {
	Health       float64 `json:"health"`
	MaxHealth    float64 `json:"maxHealth"`
	Mana         float64 `json:"mana"`
	MaxMana      float64 `json:"maxMana"`
	Strength     float64 `json:"strength"`
	Intelligence float64 `json:"intelligence"`
	Dexterity    float64 `json:"dexterity"`
	Level        float64 `json:"level"`
	Experience   float64 `json:"experience"`
}

// Character stores the relayed character data for one player.
// Pure data, zero methods. Validation lives in handler, mutation in world.
type Character struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Class      Class    `json:"class"`
	Stats      Stats    `json:"stats"`
	Position   Position `json:"position"`
	Rotation   float64  `json:"rotation"` // y-axis rotation in radians
	Moving     bool     `json:"moving"`
	Attacking  bool     `json:"attacking"`
	LastAttack int64    `json:"lastAttack"` // unix ms
}

// PlayerState is the join snapshot a client submits and peers receive.
type PlayerState struct {
	Character   Character `json:"character"`
	Inventory   Inventory `json:"inventory"`
	IsAttacking bool      `json:"isAttacking"`
}
