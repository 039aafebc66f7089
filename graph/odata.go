package graph

import "encoding/json"

// oDataPage is one page of a collection listing. The legacy Graph
// (api-version 1.6) spells the continuation link without the "@" prefix.
type oDataPage struct {
	NextLink string          `json:"odata.nextLink,omitempty"`
	Value    json.RawMessage `json:"value,omitempty"`
}

type oDataListResponse[T any] struct {
	Value []T `json:"value"`
}
