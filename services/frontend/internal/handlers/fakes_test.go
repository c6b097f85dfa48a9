package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DEFRA/eutd-mmo-fes-external-frontend-sub005/pkg/authn"
	"github.com/DEFRA/eutd-mmo-fes-external-frontend-sub005/pkg/document"
	"github.com/DEFRA/eutd-mmo-fes-external-frontend-sub005/pkg/journey"
	"github.com/DEFRA/eutd-mmo-fes-external-frontend-sub005/pkg/ratelimit"
	"github.com/DEFRA/eutd-mmo-fes-external-frontend-sub005/pkg/session"
	"github.com/DEFRA/eutd-mmo-fes-external-frontend-sub005/pkg/validation"
	"github.com/DEFRA/eutd-mmo-fes-external-frontend-sub005/services/frontend/internal/upstream"
)

type saveCall struct {
	Method   string
	Document string
	Section  string
	ID       string
	Payload  any
	Draft    bool
}

type fakeDocs struct {
	mu        sync.Mutex
	docs      map[string]*document.Document
	attrs     map[string]string
	saveErr   error
	getErr    error
	submitErr error
	calls     []saveCall
	submits   int
	nextID    int
}

func newFakeDocs() *fakeDocs {
	return &fakeDocs{
		docs:  map[string]*document.Document{},
		attrs: map[string]string{privacyAttribute: "true"},
	}
}

func (f *fakeDocs) put(d *document.Document) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[d.DocumentNumber] = d
}

func (f *fakeDocs) record(c saveCall) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

func (f *fakeDocs) callsTo(section string) []saveCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []saveCall
	for _, c := range f.calls {
		if c.Section == section {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeDocs) ListDocuments(_ context.Context, j journey.Journey) ([]upstream.DocumentSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []upstream.DocumentSummary
	for _, d := range f.docs {
		if got, _ := journey.FromDocumentNumber(d.DocumentNumber); got == j {
			out = append(out, upstream.DocumentSummary{DocumentNumber: d.DocumentNumber, Status: d.Status})
		}
	}
	return out, nil
}

func (f *fakeDocs) CreateDraft(_ context.Context, j journey.Journey) (string, error) {
	f.mu.Lock()
	f.nextID++
	num := fmt.Sprintf("GBR-2024-%s-NEW%d", marker(j), f.nextID)
	f.mu.Unlock()
	f.put(&document.Document{DocumentNumber: num, Status: document.StatusDraft})
	return num, nil
}

func marker(j journey.Journey) string {
	switch j {
	case journey.ProcessingStatement:
		return "PS"
	case journey.StorageNotes:
		return "SD"
	}
	return "CC"
}

func (f *fakeDocs) GetDocument(_ context.Context, num string) (*document.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	d, ok := f.docs[num]
	if !ok {
		return nil, &upstream.Error{StatusCode: http.StatusNotFound}
	}
	cp := *d
	return &cp, nil
}

func (f *fakeDocs) SaveSection(_ context.Context, num, section string, payload any, draft bool) error {
	f.record(saveCall{Method: "save", Document: num, Section: section, Payload: payload, Draft: draft})
	return f.saveErr
}

func (f *fakeDocs) AddItem(_ context.Context, num, section string, payload any, draft bool) (string, error) {
	f.record(saveCall{Method: "add", Document: num, Section: section, Payload: payload, Draft: draft})
	if f.saveErr != nil {
		return "", f.saveErr
	}
	return "item-1", nil
}

func (f *fakeDocs) UpdateItem(_ context.Context, num, section, id string, payload any, draft bool) error {
	f.record(saveCall{Method: "update", Document: num, Section: section, ID: id, Payload: payload, Draft: draft})
	return f.saveErr
}

func (f *fakeDocs) RemoveItem(_ context.Context, num, section, id string) error {
	f.record(saveCall{Method: "remove", Document: num, Section: section, ID: id})
	return nil
}

func (f *fakeDocs) DeleteDraft(_ context.Context, num string) error {
	f.record(saveCall{Method: "delete", Document: num})
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.docs, num)
	return nil
}

func (f *fakeDocs) VoidDocument(_ context.Context, num string) error {
	f.record(saveCall{Method: "void", Document: num})
	return nil
}

func (f *fakeDocs) CopyDocument(_ context.Context, num string, voidOriginal bool) (string, error) {
	f.record(saveCall{Method: "copy", Document: num, Payload: voidOriginal})
	return num + "-COPY", nil
}

func (f *fakeDocs) Submit(_ context.Context, num string) (*upstream.SubmitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits++
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	if d, ok := f.docs[num]; ok {
		d.Status = document.StatusComplete
		d.PDFURL = "https://pdf.example/" + num + ".pdf"
	}
	return &upstream.SubmitResult{DocumentNumber: num, Status: document.StatusComplete}, nil
}

func (f *fakeDocs) SearchSpecies(context.Context, string) ([]upstream.Species, error) {
	return []upstream.Species{{FAOCode: "COD", CommonName: "Atlantic cod"}}, nil
}

func (f *fakeDocs) SearchVessels(context.Context, string, string) ([]upstream.Vessel, error) {
	return []upstream.Vessel{{VesselName: "WIRON 5", PLN: "H1100"}}, nil
}

func (f *fakeDocs) ListCountries(context.Context) ([]upstream.Country, error) {
	return []upstream.Country{{OfficialCountryName: "France", ISOCodeAlpha2: "FR"}}, nil
}

func (f *fakeDocs) GetUserAttributes(context.Context) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]string{}
	for k, v := range f.attrs {
		out[k] = v
	}
	return out, nil
}

func (f *fakeDocs) SaveUserAttribute(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attrs[key] = value
	return nil
}

// fakeReference answers every postcode with addresses entries (one when zero).
type fakeReference struct {
	mu        sync.Mutex
	addresses int
	err       error
	lookups   []string
}

func (f *fakeReference) LookupAddresses(_ context.Context, postcode string) ([]upstream.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups = append(f.lookups, postcode)
	if f.err != nil {
		return nil, f.err
	}
	n := max(f.addresses, 1)
	out := make([]upstream.Address, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, upstream.Address{
			AddressLine:    fmt.Sprintf("Flat %d, Fish Quay House, %d Quayside, Newcastle upon Tyne", i, i),
			BuildingNumber: fmt.Sprint(i),
			Street:         "Quayside",
			TownCity:       "Newcastle upon Tyne",
			County:         "Tyne and Wear",
			Postcode:       postcode,
		})
	}
	return out, nil
}

func (f *fakeReference) CommodityCodes(context.Context, string) ([]upstream.CommodityCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return []upstream.CommodityCode{{Code: "03025110", Description: "Fresh cod"}}, nil
}

type eventLog struct {
	mu     sync.Mutex
	events []authn.Event
}

func (e *eventLog) Record(_ context.Context, ev authn.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
	return nil
}

func (e *eventLog) kinds() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []string
	for _, ev := range e.events {
		out = append(out, ev.Kind)
	}
	return out
}

func validationErr(errs ...validation.Error) error {
	return &upstream.Error{StatusCode: http.StatusBadRequest, Validation: errs}
}

// harness drives the router like a browser: it keeps the session cookie
// between requests and never follows redirects.
type harness struct {
	t       *testing.T
	docs    *fakeDocs
	ref     *fakeReference
	events  *eventLog
	codec   *session.Codec
	handler http.Handler
	cookie  *http.Cookie
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	codec, err := session.NewCodec("test-secret-0123456789abcdef0123456789")
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	h := &harness{t: t, docs: newFakeDocs(), ref: &fakeReference{}, events: &eventLog{}, codec: codec}
	srv := New(Deps{
		Documents:      h.docs,
		Reference:      h.ref,
		Sessions:       session.NewCookieStore(codec, session.CookieOptions{}),
		Events:         h.events,
		AddressLimiter: ratelimit.New(2, time.Minute),
		SignedOutURL:   "https://signed-out.example",
		Features:       Features{CopyVoid: true},
	})
	h.handler = srv.Routes()
	return h
}

func (h *harness) do(method, path string, form url.Values) *httptest.ResponseRecorder {
	h.t.Helper()
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, path, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Authorization", "Bearer user-token")
	if h.cookie != nil {
		req.AddCookie(h.cookie)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.Name != session.CookieName {
			continue
		}
		if c.MaxAge < 0 {
			h.cookie = nil
		} else {
			h.cookie = &http.Cookie{Name: c.Name, Value: c.Value}
		}
	}
	return rec
}

// sessionValues decodes the cookie the harness currently holds.
func (h *harness) sessionValues() map[string]string {
	h.t.Helper()
	if h.cookie == nil {
		return nil
	}
	var rec struct {
		Values map[string]string `json:"values"`
	}
	if err := h.codec.Decode(h.cookie.Value, &rec); err != nil {
		h.t.Fatalf("decode session cookie: %v", err)
	}
	return rec.Values
}

func (h *harness) get(path string) *httptest.ResponseRecorder { return h.do(http.MethodGet, path, nil) }

func (h *harness) post(path string, form url.Values) *httptest.ResponseRecorder {
	if form == nil {
		form = url.Values{}
	}
	return h.do(http.MethodPost, path, form)
}

type viewResponse struct {
	View
	Data json.RawMessage `json:"data"`
}

func (h *harness) view(rec *httptest.ResponseRecorder) viewResponse {
	h.t.Helper()
	var v viewResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		h.t.Fatalf("decode view: %v (body=%s)", err, rec.Body.String())
	}
	return v
}

// token loads path and returns the CSRF token its view carries.
func (h *harness) token(path string) string {
	h.t.Helper()
	rec := h.get(path)
	if rec.Code != http.StatusOK {
		h.t.Fatalf("GET %s: expected 200, got %d (%s)", path, rec.Code, rec.Body.String())
	}
	tok := h.view(rec).CSRF
	if tok == "" {
		h.t.Fatalf("GET %s: expected csrf token", path)
	}
	return tok
}

func expectRedirect(t *testing.T, rec *httptest.ResponseRecorder, want string) {
	t.Helper()
	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302 to %s, got %d (%s)", want, rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Location"); got != want {
		t.Fatalf("expected redirect to %s, got %s", want, got)
	}
}

func draftCatchCertificate(num string) *document.Document {
	return &document.Document{DocumentNumber: num, Status: document.StatusDraft}
}

func completeCatchCertificate(num string) *document.Document {
	return &document.Document{
		DocumentNumber: num,
		Status:         document.StatusDraft,
		Exporter:       &document.Exporter{ExporterFullName: "Jo Bloggs", AddressOne: "1 Quay St", Postcode: "NE1 1AA"},
		Products: []document.Product{{
			ID: "p1", Species: "Atlantic cod", CommodityCode: "03025110", State: "FRE", Presentation: "WHL",
			Landings: []document.Landing{{ID: "l1", VesselName: "WIRON 5", DateLanded: "2024-01-02", ExportWeight: "100"}},
		}},
		LandingsEntryOption: document.LandingsManual,
		Conservation:        &document.Conservation{CaughtIn: "UK"},
		Transport:           &document.Transport{Vehicle: document.VehicleDirectLanding},
	}
}
