package entity

// CatalogEntry is one QuickBooks inventory item.
type CatalogEntry struct {
	ItemID      string `json:"item_id" yaml:"id"`
	DisplayName string `json:"display_name" yaml:"name"`
	Type        string `json:"type,omitempty" yaml:"type,omitempty"`
}

// NamedRef is a (name, id) pair from the vendor or account directory.
type NamedRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
