package storefront

import (
	"context"

	"github.com/utafrali/storefront/internal/domain"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// CatalogAPI is the remote catalog contract.
type CatalogAPI interface {
	FetchProducts(ctx context.Context, count int, filterQuery string, locale domain.Locale) (*domain.ProductList, error)
	FetchProductByHandle(ctx context.Context, handle string, locale domain.Locale) (*domain.Product, error)
}

var _ CatalogAPI = (*Client)(nil)

type variantNode struct {
	ID               string                  `json:"id"`
	Title            string                  `json:"title"`
	AvailableForSale bool                    `json:"availableForSale"`
	Price            moneyV2                 `json:"price"`
	CompareAtPrice   *moneyV2                `json:"compareAtPrice"`
	SelectedOptions  []domain.SelectedOption `json:"selectedOptions"`
	Image            *imageNode              `json:"image"`
}

type productNode struct {
	ID          string   `json:"id"`
	Handle      string   `json:"handle"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Vendor      string   `json:"vendor"`
	ProductType string   `json:"productType"`
	Tags        []string `json:"tags"`
	PriceRange  struct {
		MinVariantPrice moneyV2 `json:"minVariantPrice"`
		MaxVariantPrice moneyV2 `json:"maxVariantPrice"`
	} `json:"priceRange"`
	Images struct {
		Edges []struct {
			Node imageNode `json:"node"`
		} `json:"edges"`
	} `json:"images"`
	Variants struct {
		Edges []struct {
			Node variantNode `json:"node"`
		} `json:"edges"`
	} `json:"variants"`
}

func (img imageNode) toDomain() domain.ProductImage {
	return domain.ProductImage{URL: img.URL, AltText: img.AltText, Width: img.Width, Height: img.Height}
}

func (n productNode) toDomain() domain.Product {
	p := domain.Product{
		ID:          n.ID,
		Handle:      n.Handle,
		Title:       n.Title,
		Description: n.Description,
		Vendor:      n.Vendor,
		ProductType: n.ProductType,
		Tags:        n.Tags,
		MinPrice:    n.PriceRange.MinVariantPrice.toDomain(),
		MaxPrice:    n.PriceRange.MaxVariantPrice.toDomain(),
	}
	for _, e := range n.Images.Edges {
		p.Images = append(p.Images, e.Node.toDomain())
	}
	for _, e := range n.Variants.Edges {
		v := e.Node
		dv := domain.ProductVariant{
			ID:               v.ID,
			Title:            v.Title,
			AvailableForSale: v.AvailableForSale,
			Price:            v.Price.toDomain(),
			SelectedOptions:  v.SelectedOptions,
		}
		if v.CompareAtPrice != nil {
			m := v.CompareAtPrice.toDomain()
			dv.CompareAtPrice = &m
		}
		if v.Image != nil {
			img := v.Image.toDomain()
			dv.Image = &img
		}
		p.Variants = append(p.Variants, dv)
	}
	return p
}

// FetchProducts lists up to count products matching the optional search
// filter, priced and translated for locale.
func (c *Client) FetchProducts(ctx context.Context, count int, filterQuery string, locale domain.Locale) (*domain.ProductList, error) {
	vars := map[string]any{"first": count}
	if filterQuery != "" {
		vars["query"] = filterQuery
	}

	var out struct {
		Products struct {
			Edges []struct {
				Node productNode `json:"node"`
			} `json:"edges"`
			PageInfo struct {
				HasNextPage bool   `json:"hasNextPage"`
				EndCursor   string `json:"endCursor"`
			} `json:"pageInfo"`
		} `json:"products"`
	}
	if err := c.Request(ctx, productsQuery, vars, locale, &out); err != nil {
		return nil, err
	}

	list := &domain.ProductList{
		Products:    make([]domain.Product, 0, len(out.Products.Edges)),
		HasNextPage: out.Products.PageInfo.HasNextPage,
		EndCursor:   out.Products.PageInfo.EndCursor,
	}
	for _, e := range out.Products.Edges {
		list.Products = append(list.Products, e.Node.toDomain())
	}
	return list, nil
}

// FetchProductByHandle returns the product with handle, or a NOT_FOUND
// application error.
func (c *Client) FetchProductByHandle(ctx context.Context, handle string, locale domain.Locale) (*domain.Product, error) {
	var out struct {
		Product *productNode `json:"product"`
	}
	if err := c.Request(ctx, productByHandleQuery, map[string]any{"handle": handle}, locale, &out); err != nil {
		return nil, err
	}
	if out.Product == nil {
		return nil, apperrors.NotFound("product", handle)
	}
	p := out.Product.toDomain()
	return &p, nil
}
