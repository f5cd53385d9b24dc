package component

// LobbySummary is the public projection of a lobby. Member identities are
// never exposed.
type LobbySummary struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	HostName    string `json:"hostName"`
	PlayerCount int    `json:"playerCount"`
	MaxPlayers  int    `json:"maxPlayers"`
	CreatedAt   int64  `json:"createdAt"` // unix ms
}
