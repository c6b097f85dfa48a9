package upstream

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/DEFRA/eutd-mmo-fes-external-frontend-sub005/pkg/document"
	"github.com/DEFRA/eutd-mmo-fes-external-frontend-sub005/pkg/journey"
)

// Client calls the orchestration service on behalf of the signed-in user.
type Client struct {
	transport
	staticToken string
}

// NewClient builds a client. staticToken, when set, is used for requests
// whose context carries no token (local development only).
func NewClient(baseURL, staticToken string, opts ...Option) *Client {
	c := &Client{transport: newTransport(baseURL, opts), staticToken: staticToken}
	c.authorize = func(ctx context.Context, req *http.Request) error {
		tok := tokenFrom(ctx)
		if tok == "" {
			tok = c.staticToken
		}
		if tok == "" {
			return ErrNoToken
		}
		req.Header.Set("Authorization", "Bearer "+tok)
		return nil
	}
	return c
}

type DocumentSummary struct {
	DocumentNumber string `json:"documentNumber"`
	Status         string `json:"status"`
	UserReference  string `json:"userReference,omitempty"`
	CreatedAt      string `json:"createdAt,omitempty"`
	PDFURL         string `json:"pdfUrl,omitempty"`
}

type SubmitResult struct {
	DocumentNumber string `json:"documentNumber"`
	Status         string `json:"status"`
	PDFURL         string `json:"pdfUrl,omitempty"`
}

type Species struct {
	FAOCode        string `json:"faoCode"`
	CommonName     string `json:"commonName"`
	ScientificName string `json:"scientificName,omitempty"`
}

type Vessel struct {
	VesselName string `json:"vesselName"`
	PLN        string `json:"pln"`
	FlagState  string `json:"flag,omitempty"`
	HomePort   string `json:"homePort,omitempty"`
}

type Country struct {
	OfficialCountryName string `json:"officialCountryName"`
	ISOCodeAlpha2       string `json:"isoCodeAlpha2"`
	ISOCodeAlpha3       string `json:"isoCodeAlpha3,omitempty"`
}

func docPath(documentNumber string, parts ...string) string {
	p := "/v1/documents/" + url.PathEscape(documentNumber)
	for _, part := range parts {
		p += "/" + url.PathEscape(part)
	}
	return p
}

func draftQuery(draft bool) url.Values {
	if !draft {
		return nil
	}
	return url.Values{"draft": []string{"true"}}
}

func (c *Client) ListDocuments(ctx context.Context, j journey.Journey) ([]DocumentSummary, error) {
	var out struct {
		Documents []DocumentSummary `json:"documents"`
	}
	q := url.Values{"journey": []string{string(j)}}
	if err := c.do(ctx, http.MethodGet, "/v1/documents", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Documents, nil
}

func (c *Client) CreateDraft(ctx context.Context, j journey.Journey) (string, error) {
	var out DocumentSummary
	if err := c.do(ctx, http.MethodPost, "/v1/documents", nil, map[string]string{"journey": string(j)}, &out); err != nil {
		return "", err
	}
	if out.DocumentNumber == "" {
		return "", fmt.Errorf("create draft: empty document number")
	}
	return out.DocumentNumber, nil
}

func (c *Client) GetDocument(ctx context.Context, documentNumber string) (*document.Document, error) {
	var out document.Document
	if err := c.do(ctx, http.MethodGet, docPath(documentNumber), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SaveSection replaces one section of the document. With draft set the
// upstream accepts partial data.
func (c *Client) SaveSection(ctx context.Context, documentNumber, section string, payload any, draft bool) error {
	return c.do(ctx, http.MethodPut, docPath(documentNumber, section), draftQuery(draft), payload, nil)
}

// AddItem appends to a list section (products, landings, catches, facilities)
// and returns the new item's id.
func (c *Client) AddItem(ctx context.Context, documentNumber, section string, payload any, draft bool) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, docPath(documentNumber, section), draftQuery(draft), payload, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (c *Client) UpdateItem(ctx context.Context, documentNumber, section, id string, payload any, draft bool) error {
	return c.do(ctx, http.MethodPut, docPath(documentNumber, section, id), draftQuery(draft), payload, nil)
}

func (c *Client) RemoveItem(ctx context.Context, documentNumber, section, id string) error {
	return c.do(ctx, http.MethodDelete, docPath(documentNumber, section, id), nil, nil, nil)
}

func (c *Client) DeleteDraft(ctx context.Context, documentNumber string) error {
	return c.do(ctx, http.MethodDelete, docPath(documentNumber), nil, nil, nil)
}

func (c *Client) VoidDocument(ctx context.Context, documentNumber string) error {
	return c.do(ctx, http.MethodPost, docPath(documentNumber, "void"), nil, nil, nil)
}

// CopyDocument creates a new draft from documentNumber, optionally voiding
// the original, and returns the new document number.
func (c *Client) CopyDocument(ctx context.Context, documentNumber string, voidOriginal bool) (string, error) {
	var out DocumentSummary
	body := map[string]bool{"voidOriginal": voidOriginal}
	if err := c.do(ctx, http.MethodPost, docPath(documentNumber, "copy"), nil, body, &out); err != nil {
		return "", err
	}
	if out.DocumentNumber == "" {
		return "", fmt.Errorf("copy %s: empty document number", documentNumber)
	}
	return out.DocumentNumber, nil
}

func (c *Client) Submit(ctx context.Context, documentNumber string) (*SubmitResult, error) {
	var out SubmitResult
	if err := c.do(ctx, http.MethodPost, docPath(documentNumber, "submit"), nil, nil, &out); err != nil {
		return nil, err
	}
	if out.DocumentNumber == "" {
		out.DocumentNumber = documentNumber
	}
	return &out, nil
}

func (c *Client) SearchSpecies(ctx context.Context, query string) ([]Species, error) {
	var out []Species
	if err := c.do(ctx, http.MethodGet, "/v1/species", url.Values{"q": []string{query}}, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) SearchVessels(ctx context.Context, query, landedOn string) ([]Vessel, error) {
	q := url.Values{"q": []string{query}}
	if landedOn != "" {
		q.Set("landedOn", landedOn)
	}
	var out []Vessel
	if err := c.do(ctx, http.MethodGet, "/v1/vessels", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListCountries(ctx context.Context) ([]Country, error) {
	var out []Country
	if err := c.do(ctx, http.MethodGet, "/v1/countries", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetUserAttributes(ctx context.Context) (map[string]string, error) {
	var items []struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/user-attributes", nil, nil, &items); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(items))
	for _, it := range items {
		out[it.Key] = it.Value
	}
	return out, nil
}

func (c *Client) SaveUserAttribute(ctx context.Context, key, value string) error {
	return c.do(ctx, http.MethodPost, "/v1/user-attributes", nil, map[string]string{"key": key, "value": value}, nil)
}
