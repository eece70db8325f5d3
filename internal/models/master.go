package models

// LookupItem is one entry of a CRM lookup list.
type LookupItem struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// MasterData holds the lookup lists the booking form offers.
type MasterData struct {
	Artists   []LookupItem `json:"artist"`
	Promoters []LookupItem `json:"promoter"`
	Venues    []LookupItem `json:"venue"`
	Cities    []LookupItem `json:"city"`
}
