package storefront

// Every operation declares $country and $language and passes them to
// @inContext so prices, currency and translations follow the locale.

const cartFragment = `
fragment CartFields on Cart {
  id
  checkoutUrl
  updatedAt
  buyerIdentity {
    email
    countryCode
  }
  lines(first: 250) {
    edges {
      node {
        id
        quantity
        cost {
          amountPerQuantity {
            amount
            currencyCode
          }
        }
        merchandise {
          ... on ProductVariant {
            id
            selectedOptions {
              name
              value
            }
            image {
              url
            }
            product {
              id
              handle
              title
              featuredImage {
                url
              }
            }
          }
        }
      }
    }
  }
}`

const productFragment = `
fragment ProductFields on Product {
  id
  handle
  title
  description
  vendor
  productType
  tags
  priceRange {
    minVariantPrice {
      amount
      currencyCode
    }
    maxVariantPrice {
      amount
      currencyCode
    }
  }
  images(first: 10) {
    edges {
      node {
        url
        altText
        width
        height
      }
    }
  }
  variants(first: 100) {
    edges {
      node {
        id
        title
        availableForSale
        price {
          amount
          currencyCode
        }
        compareAtPrice {
          amount
          currencyCode
        }
        selectedOptions {
          name
          value
        }
        image {
          url
          altText
        }
      }
    }
  }
}`

const getCartQuery = `query getCart($cartId: ID!, $country: CountryCode, $language: LanguageCode)
@inContext(country: $country, language: $language) {
  cart(id: $cartId) {
    ...CartFields
  }
}` + cartFragment

const productsQuery = `query getProducts($first: Int!, $query: String, $country: CountryCode, $language: LanguageCode)
@inContext(country: $country, language: $language) {
  products(first: $first, query: $query) {
    edges {
      node {
        ...ProductFields
      }
    }
    pageInfo {
      hasNextPage
      endCursor
    }
  }
}` + productFragment

const productByHandleQuery = `query getProductByHandle($handle: String!, $country: CountryCode, $language: LanguageCode)
@inContext(country: $country, language: $language) {
  product(handle: $handle) {
    ...ProductFields
  }
}` + productFragment
