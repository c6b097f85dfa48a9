package upstream

import (
	"context"
	"net/http"
	"net/url"
)

// ReferenceClient reads address and commodity code data with HTTP Basic auth.
type ReferenceClient struct {
	transport
}

func NewReferenceClient(baseURL, username, password string, opts ...Option) *ReferenceClient {
	c := &ReferenceClient{transport: newTransport(baseURL, opts)}
	c.authorize = func(_ context.Context, req *http.Request) error {
		if username != "" {
			req.SetBasicAuth(username, password)
		}
		return nil
	}
	return c
}

type Address struct {
	AddressLine    string `json:"addressLine"`
	BuildingNumber string `json:"buildingNumber,omitempty"`
	Street         string `json:"street,omitempty"`
	TownCity       string `json:"townCity,omitempty"`
	County         string `json:"county,omitempty"`
	Postcode       string `json:"postcode"`
}

type CommodityCode struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

func (c *ReferenceClient) LookupAddresses(ctx context.Context, postcode string) ([]Address, error) {
	var out []Address
	if err := c.do(ctx, http.MethodGet, "/addresses", url.Values{"postcode": []string{postcode}}, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ReferenceClient) CommodityCodes(ctx context.Context, speciesCode string) ([]CommodityCode, error) {
	var out []CommodityCode
	if err := c.do(ctx, http.MethodGet, "/commodity-codes", url.Values{"speciesCode": []string{speciesCode}}, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
