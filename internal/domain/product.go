package domain

// ProductImage is a catalog image.
type ProductImage struct {
	URL     string `json:"url"`
	AltText string `json:"alt_text,omitempty"`
	Width   int    `json:"width,omitempty"`
	Height  int    `json:"height,omitempty"`
}

// ProductVariant is one purchasable SKU of a product.
type ProductVariant struct {
	ID               string           `json:"id"`
	Title            string           `json:"title"`
	AvailableForSale bool             `json:"available_for_sale"`
	Price            Money            `json:"price"`
	CompareAtPrice   *Money           `json:"compare_at_price,omitempty"`
	SelectedOptions  []SelectedOption `json:"selected_options,omitempty"`
	Image            *ProductImage    `json:"image,omitempty"`
}

// Product is a catalog product in the requested locale.
type Product struct {
	ID          string           `json:"id"`
	Handle      string           `json:"handle"`
	Title       string           `json:"title"`
	Description string           `json:"description,omitempty"`
	Vendor      string           `json:"vendor,omitempty"`
	ProductType string           `json:"product_type,omitempty"`
	Tags        []string         `json:"tags,omitempty"`
	MinPrice    Money            `json:"min_price"`
	MaxPrice    Money            `json:"max_price"`
	Images      []ProductImage   `json:"images,omitempty"`
	Variants    []ProductVariant `json:"variants,omitempty"`
}

// ProductList is one page of products.
type ProductList struct {
	Products    []Product `json:"products"`
	HasNextPage bool      `json:"has_next_page"`
	EndCursor   string    `json:"end_cursor,omitempty"`
}
