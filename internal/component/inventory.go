package component

// Item is an inventory entry. The server relays items without interpreting
// them; Stats holds the partial stat modifiers the item grants.
type Item struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Type        string             `json:"type"` // weapon, armor, potion, quest
	Value       float64            `json:"value"`
	Description string             `json:"description"`
	Icon        string             `json:"icon,omitempty"`
	Stats       map[string]float64 `json:"stats,omitempty"`
}

// Inventory is the snapshot sent alongside a character on join.
type Inventory struct {
	Items    []Item  `json:"items"`
	Gold     float64 `json:"gold"`
	MaxSlots int     `json:"maxSlots"`
}
