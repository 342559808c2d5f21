package marketplace

import "time"

// Item is the upstream representation of one listing. Attributes and
// SaleTerms are irregular: values may live in value_name, value_struct or
// neither depending on the category.
type Item struct {
	ID                string      `json:"id"`
	Title             string      `json:"title"`
	SellerCustomField *string     `json:"seller_custom_field"`
	AvailableQuantity int         `json:"available_quantity"`
	Price             float64     `json:"price"`
	Status            string      `json:"status"`
	CategoryID        string      `json:"category_id"`
	Condition         string      `json:"condition"`
	ListingTypeID     string      `json:"listing_type_id"`
	Health            float64     `json:"health"`
	Permalink         string      `json:"permalink"`
	Attributes        []Attribute `json:"attributes"`
	SaleTerms         []SaleTerm  `json:"sale_terms"`
	LastUpdated       *time.Time  `json:"last_updated"`
}

type Attribute struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	ValueName *string `json:"value_name"`
}

type SaleTerm struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	ValueName   *string      `json:"value_name"`
	ValueStruct *ValueStruct `json:"value_struct"`
}

type ValueStruct struct {
	Number float64 `json:"number"`
	Unit   string  `json:"unit"`
}

// ScanPage is one page of the scan-type id listing.
type ScanPage struct {
	IDs           []string
	ScrollID      string
	Total         int
	ScanCompleted bool
	HasMore       bool
}

type scanResponse struct {
	Results  []string `json:"results"`
	ScrollID string   `json:"scroll_id"`
	Paging   struct {
		Total int `json:"total"`
	} `json:"paging"`
}

type multiGetEntry struct {
	Code int  `json:"code"`
	Body Item `json:"body"`
}
