package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"testing"

	"github.com/DEFRA/eutd-mmo-fes-external-frontend-sub005/pkg/authn"
	"github.com/DEFRA/eutd-mmo-fes-external-frontend-sub005/pkg/document"
	"github.com/DEFRA/eutd-mmo-fes-external-frontend-sub005/pkg/journey"
	"github.com/DEFRA/eutd-mmo-fes-external-frontend-sub005/pkg/progress"
	"github.com/DEFRA/eutd-mmo-fes-external-frontend-sub005/pkg/validation"
	"github.com/DEFRA/eutd-mmo-fes-external-frontend-sub005/services/frontend/internal/upstream"
)

const ccDoc = "GBR-2024-CC-0001"

var (
	referenceURL = journey.StepURL(journey.CatchCertificate, ccDoc, "add-your-reference")
	exporterURL  = journey.StepURL(journey.CatchCertificate, ccDoc, "add-exporter-details")
	ccDashboard  = journey.DashboardURL(journey.CatchCertificate)
)

func TestHealth(t *testing.T) {
	h := newHarness(t)
	if rec := h.get("/health"); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestGetStepWithoutSessionIssuesFreshToken(t *testing.T) {
	h := newHarness(t)
	h.docs.put(draftCatchCertificate(ccDoc))

	first := h.get(referenceURL)
	if first.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", first.Code, first.Body.String())
	}
	if len(first.Result().Cookies()) == 0 {
		t.Fatalf("expected a session cookie on first visit")
	}
	tok1 := h.view(first).CSRF

	h.cookie = nil
	tok2 := h.view(h.get(referenceURL)).CSRF
	if tok1 == "" || tok2 == "" || tok1 == tok2 {
		t.Fatalf("expected distinct non-empty tokens, got %q and %q", tok1, tok2)
	}
}

func TestTamperedOrMissingTokenIsForbidden(t *testing.T) {
	h := newHarness(t)
	h.docs.put(draftCatchCertificate(ccDoc))
	tok := h.token(referenceURL)

	rec := h.post(referenceURL, url.Values{"csrf": {tok + "x"}, "userReference": {"ref"}})
	expectRedirect(t, rec, journey.ForbiddenURL)

	rec = h.post(referenceURL, url.Values{"userReference": {"ref"}})
	expectRedirect(t, rec, journey.ForbiddenURL)

	if len(h.docs.callsTo("userReference")) != 0 {
		t.Fatalf("expected no upstream save after csrf failure")
	}
	kinds := h.events.kinds()
	if len(kinds) != 2 || kinds[0] != authn.EventCSRFRejected {
		t.Fatalf("expected two csrf events, got %v", kinds)
	}
}

func TestSaveAsDraftGoesToDashboardDespiteErrors(t *testing.T) {
	h := newHarness(t)
	h.docs.put(draftCatchCertificate(ccDoc))
	h.docs.saveErr = validationErr(validation.New("postcode", "any.required"))
	tok := h.token(exporterURL)

	rec := h.post(exporterURL, url.Values{"csrf": {tok}, "_action": {"saveAsDraft"}, "exporterFullName": {"Jo"}})
	expectRedirect(t, rec, ccDashboard)

	calls := h.docs.callsTo("exporter")
	if len(calls) != 1 || !calls[0].Draft {
		t.Fatalf("expected one draft save, got %+v", calls)
	}
}

func TestSaveAndContinueRerendersUpstreamErrors(t *testing.T) {
	h := newHarness(t)
	h.docs.put(draftCatchCertificate(ccDoc))
	h.docs.saveErr = validationErr(
		validation.New("exporterFullName", "any.required"),
		validation.New("postcode", "string.pattern.base"),
	)
	tok := h.token(exporterURL)

	rec := h.post(exporterURL, url.Values{
		"csrf":                {tok},
		"_action":             {"saveAndContinue"},
		"exporterCompanyName": {"Fish Ltd"},
		"postcode":            {"NOT A POSTCODE"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (%s)", rec.Code, rec.Body.String())
	}
	v := h.view(rec)
	if len(v.ErrorSummary) != 2 || v.ErrorSummary[0].Href != "#exporterFullName" {
		t.Fatalf("expected two linked summary entries, got %+v", v.ErrorSummary)
	}
	if v.Errors["postcode"].Message != "error.postcode.string.pattern.base" {
		t.Fatalf("expected inline postcode error, got %+v", v.Errors)
	}
	if v.Fields["exporterCompanyName"] != "Fish Ltd" || v.Fields["postcode"] != "NOT A POSTCODE" {
		t.Fatalf("expected submitted values echoed, got %+v", v.Fields)
	}
	if v.CSRF == "" || v.CSRF == tok {
		t.Fatalf("expected a fresh csrf token on re-render")
	}
	if calls := h.docs.callsTo("exporter"); len(calls) != 1 || calls[0].Draft {
		t.Fatalf("expected one non-draft save, got %+v", calls)
	}
}

func TestSaveAndContinueMovesToNextStep(t *testing.T) {
	h := newHarness(t)
	h.docs.put(draftCatchCertificate(ccDoc))
	tok := h.token(referenceURL)

	rec := h.post(referenceURL, url.Values{"csrf": {tok}, "userReference": {"MY-REF"}})
	expectRedirect(t, rec, exporterURL)

	calls := h.docs.callsTo("userReference")
	if len(calls) != 1 {
		t.Fatalf("expected one save, got %d", len(calls))
	}
	payload := calls[0].Payload.(map[string]string)
	if payload["userReference"] != "MY-REF" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestUpstreamForbiddenRedirects(t *testing.T) {
	h := newHarness(t)
	h.docs.getErr = &upstream.Error{StatusCode: http.StatusForbidden}
	expectRedirect(t, h.get(referenceURL), journey.ForbiddenURL)
	if kinds := h.events.kinds(); len(kinds) != 1 || kinds[0] != authn.EventUpstreamForbidden {
		t.Fatalf("expected forbidden event, got %v", kinds)
	}
}

func TestUnexpectedUpstreamFailureIsProblemPage(t *testing.T) {
	h := newHarness(t)
	h.docs.getErr = errors.New("connection refused")
	rec := h.get(referenceURL)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if h.view(rec).Page != "problem" {
		t.Fatalf("expected problem page, got %s", rec.Body.String())
	}
}

func TestDocumentFromAnotherJourneyIsNotFound(t *testing.T) {
	h := newHarness(t)
	rec := h.get(journey.StepURL(journey.CatchCertificate, "GBR-2024-SD-0001", "add-your-reference"))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestLandingsEntrySwitchNeedsConfirmation(t *testing.T) {
	h := newHarness(t)
	doc := draftCatchCertificate(ccDoc)
	doc.LandingsEntryOption = document.LandingsDirect
	doc.Products = []document.Product{{ID: "p1", Species: "Atlantic cod", Landings: []document.Landing{{ID: "l1", VesselName: "WIRON 5"}}}}
	h.docs.put(doc)
	entryURL := journey.StepURL(journey.CatchCertificate, ccDoc, "landings-entry")
	confirmURL := journey.StepURL(journey.CatchCertificate, ccDoc, "landings-type-confirmation")

	tok := h.token(entryURL)
	rec := h.post(entryURL, url.Values{"csrf": {tok}, "landingsEntryOption": {document.LandingsManual}})
	expectRedirect(t, rec, confirmURL)
	if calls := h.docs.callsTo("landingsEntryOption"); len(calls) != 0 {
		t.Fatalf("expected no save before confirmation, got %+v", calls)
	}

	rec = h.get(confirmURL)
	var data struct {
		Data landingsConfirmData `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &data); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if data.Data.Current != document.LandingsDirect || data.Data.Pending != document.LandingsManual || !data.Data.DiscardsLandings {
		t.Fatalf("unexpected confirmation data %+v", data.Data)
	}
	tok = h.view(rec).CSRF

	rec = h.post(confirmURL, url.Values{"csrf": {tok}, "answer": {"Yes"}})
	expectRedirect(t, rec, journey.StepURL(journey.CatchCertificate, ccDoc, "add-landings"))
	calls := h.docs.callsTo("landingsEntryOption")
	if len(calls) != 1 || calls[0].Payload.(map[string]string)["landingsEntryOption"] != document.LandingsManual {
		t.Fatalf("expected manualEntry to be committed, got %+v", calls)
	}

	// The pending choice is gone: the confirmation page sends users back.
	expectRedirect(t, h.get(confirmURL), entryURL)
}

func TestLandingsEntryFirstChoiceCommitsDirectly(t *testing.T) {
	h := newHarness(t)
	h.docs.put(draftCatchCertificate(ccDoc))
	entryURL := journey.StepURL(journey.CatchCertificate, ccDoc, "landings-entry")
	tok := h.token(entryURL)

	rec := h.post(entryURL, url.Values{"csrf": {tok}, "landingsEntryOption": {document.LandingsUpload}})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected upload option to be rejected while disabled, got %d", rec.Code)
	}
	tok = h.view(rec).CSRF

	rec = h.post(entryURL, url.Values{"csrf": {tok}, "landingsEntryOption": {document.LandingsDirect}})
	expectRedirect(t, rec, journey.StepURL(journey.CatchCertificate, ccDoc, "add-landings"))
	if calls := h.docs.callsTo("landingsEntryOption"); len(calls) != 1 {
		t.Fatalf("expected one save, got %+v", calls)
	}
}

func TestEditLandingPrefillsAndClearsAfterSave(t *testing.T) {
	h := newHarness(t)
	h.docs.put(completeCatchCertificate(ccDoc))
	landingsURL := journey.StepURL(journey.CatchCertificate, ccDoc, "add-landings")

	tok := h.token(landingsURL)
	rec := h.post(landingsURL, url.Values{"csrf": {tok}, "_action": {"edit"}, "landingId": {"l1"}})
	expectRedirect(t, rec, landingsURL)

	rec = h.get(landingsURL)
	v := h.view(rec)
	if v.Fields["vesselName"] != "WIRON 5" || v.Fields["productId"] != "p1" {
		t.Fatalf("expected edit prefill, got %+v", v.Fields)
	}

	rec = h.post(landingsURL, url.Values{"csrf": {v.CSRF}, "_action": {"addLanding"}, "productId": {"p1"}, "vesselName": {"WIRON 6"}, "exportWeight": {"90"}})
	expectRedirect(t, rec, landingsURL)
	calls := h.docs.callsTo("landings")
	if len(calls) != 1 || calls[0].Method != "update" || calls[0].ID != "l1" {
		t.Fatalf("expected update of l1, got %+v", calls)
	}

	v = h.view(h.get(landingsURL))
	if v.Fields != nil {
		t.Fatalf("expected edit state cleared, got %+v", v.Fields)
	}
}

func TestProgressReportsCompleteDocument(t *testing.T) {
	h := newHarness(t)
	h.docs.put(completeCatchCertificate(ccDoc))
	progressURL := journey.ProgressURL(journey.CatchCertificate, ccDoc)

	rec := h.get(progressURL)
	var body struct {
		Data progressData `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Data.Report.CanCreate {
		t.Fatalf("expected create enabled, got %+v", body.Data.Report)
	}
	for _, s := range body.Data.Report.Sections {
		if s.Required && s.Status != progress.Completed {
			t.Fatalf("expected %s COMPLETED, got %s", s.Key, s.Status)
		}
	}

	rec = h.post(progressURL, url.Values{"csrf": {h.view(rec).CSRF}})
	expectRedirect(t, rec, journey.CheckYourInformationURL(journey.CatchCertificate, ccDoc))
}

func TestProgressPostFlagsIncompleteSections(t *testing.T) {
	h := newHarness(t)
	h.docs.put(draftCatchCertificate(ccDoc))
	progressURL := journey.ProgressURL(journey.CatchCertificate, ccDoc)

	rec := h.post(progressURL, url.Values{"csrf": {h.token(progressURL)}})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	v := h.view(rec)
	if len(v.ErrorSummary) != 6 {
		t.Fatalf("expected one summary entry per required section, got %d", len(v.ErrorSummary))
	}
}

func TestCheckYourInformationSubmitAndReplay(t *testing.T) {
	h := newHarness(t)
	h.docs.put(completeCatchCertificate(ccDoc))
	cyaURL := journey.CheckYourInformationURL(journey.CatchCertificate, ccDoc)
	createdURL := journey.CreatedURL(journey.CatchCertificate, ccDoc)

	tok := h.token(cyaURL)
	expectRedirect(t, h.post(cyaURL, url.Values{"csrf": {tok}}), createdURL)

	rec := h.get(createdURL)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected created page, got %d", rec.Code)
	}
	var body struct {
		Data createdData `json:"data"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Data.PDFURL == "" || body.Data.Status != document.StatusComplete {
		t.Fatalf("unexpected created data %+v", body.Data)
	}

	// Replay with the same token: no second submission.
	expectRedirect(t, h.post(cyaURL, url.Values{"csrf": {tok}}), createdURL)
	if h.docs.submits != 1 {
		t.Fatalf("expected a single upstream submit, got %d", h.docs.submits)
	}
}

func TestCheckYourInformationRerendersSubmitErrors(t *testing.T) {
	h := newHarness(t)
	h.docs.put(completeCatchCertificate(ccDoc))
	h.docs.submitErr = validationErr(validation.New("products.0.landings.0.exportWeight", "number.max"))
	cyaURL := journey.CheckYourInformationURL(journey.CatchCertificate, ccDoc)

	rec := h.post(cyaURL, url.Values{"csrf": {h.token(cyaURL)}})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var body struct {
		Data checkData `json:"data"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if s, _ := body.Data.Report.Section("landings"); s.Status != progress.Error {
		t.Fatalf("expected landings ERROR, got %s", s.Status)
	}
}

func TestCopyAndVoidFlow(t *testing.T) {
	h := newHarness(t)
	doc := completeCatchCertificate(ccDoc)
	doc.Status = document.StatusComplete
	h.docs.put(doc)
	copyURL := journey.CopyURL(journey.CatchCertificate, ccDoc)
	confirmURL := journey.StepURL(journey.CatchCertificate, ccDoc, "copy-void-confirmation")

	expectRedirect(t, h.get(confirmURL), copyURL)

	tok := h.token(copyURL)
	expectRedirect(t, h.post(copyURL, url.Values{"csrf": {tok}, "copyDocument": {copyOptionVoid}}), confirmURL)

	tok = h.token(confirmURL)
	rec := h.post(confirmURL, url.Values{"csrf": {tok}, "answer": {"Yes"}})
	expectRedirect(t, rec, journey.ProgressURL(journey.CatchCertificate, ccDoc+"-COPY"))

	var copies []saveCall
	for _, c := range h.docs.calls {
		if c.Method == "copy" {
			copies = append(copies, c)
		}
	}
	if len(copies) != 1 || copies[0].Payload != true {
		t.Fatalf("expected one copy with void, got %+v", copies)
	}
	expectRedirect(t, h.get(confirmURL), copyURL)
}

func TestDeleteDraftFlashesNotification(t *testing.T) {
	h := newHarness(t)
	h.docs.put(draftCatchCertificate(ccDoc))
	deleteURL := journey.StepURL(journey.CatchCertificate, ccDoc, "delete-this-draft-catch-certificate")
	expectRedirect(t, h.post(exporterURL, url.Values{"csrf": {h.token(exporterURL)}, "_action": {"findAddress"}, "postcode": {"NE1 1AA"}}), exporterURL)
	if h.sessionValues()["addressLookup-"+ccDoc] != "NE1 1AA" {
		t.Fatalf("expected the postcode in the session, got %v", h.sessionValues())
	}

	expectRedirect(t, h.post(deleteURL, url.Values{"csrf": {h.token(deleteURL)}, "answer": {"Yes"}}), ccDashboard)
	if _, ok := h.sessionValues()["addressLookup-"+ccDoc]; ok {
		t.Fatalf("expected document keys to be dropped, got %v", h.sessionValues())
	}

	v := h.view(h.get(ccDashboard))
	if v.Notification != "draftDeleted" {
		t.Fatalf("expected flash notification, got %q", v.Notification)
	}
	if v = h.view(h.get(ccDashboard)); v.Notification != "" {
		t.Fatalf("expected flash to be shown once, got %q", v.Notification)
	}
}

func TestDashboardRequiresPrivacyNotice(t *testing.T) {
	h := newHarness(t)
	delete(h.docs.attrs, privacyAttribute)

	expectRedirect(t, h.get(ccDashboard), "/privacy-notice?nextUri="+url.QueryEscape(ccDashboard))

	tok := h.token("/privacy-notice?nextUri=" + url.QueryEscape(ccDashboard))
	expectRedirect(t, h.post("/privacy-notice", url.Values{"csrf": {tok}, "agreePrivacy": {"true"}, "nextUri": {ccDashboard}}), ccDashboard)

	if rec := h.get(ccDashboard); rec.Code != http.StatusOK {
		t.Fatalf("expected dashboard after accepting, got %d", rec.Code)
	}
}

func TestDashboardCreatesDraft(t *testing.T) {
	h := newHarness(t)
	tok := h.token(ccDashboard)
	rec := h.post(ccDashboard, url.Values{"csrf": {tok}})
	expectRedirect(t, rec, journey.ProgressURL(journey.CatchCertificate, "GBR-2024-CC-NEW1"))
}

func TestPrivacyNoticeRejectsOffsiteRedirect(t *testing.T) {
	h := newHarness(t)
	tok := h.token("/privacy-notice")
	rec := h.post("/privacy-notice", url.Values{"csrf": {tok}, "agreePrivacy": {"true"}, "nextUri": {"//evil.example"}})
	expectRedirect(t, rec, "/")
}

func TestAddressLookupIsRateLimited(t *testing.T) {
	h := newHarness(t)
	h.token(ccDashboard) // establish a session
	for i := 0; i < 2; i++ {
		if rec := h.get("/api/addresses?postcode=NE1+1AA"); rec.Code != http.StatusOK {
			t.Fatalf("lookup %d: expected 200, got %d", i, rec.Code)
		}
	}
	rec := h.get("/api/addresses?postcode=NE1+1AA")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
}

func TestFindAddressKeepsCookieSmall(t *testing.T) {
	h := newHarness(t)
	h.ref.addresses = 25
	h.docs.put(draftCatchCertificate(ccDoc))
	tok := h.token(exporterURL)

	rec := h.post(exporterURL, url.Values{"csrf": {tok}, "_action": {"findAddress"}, "postcode": {"ne1 1aa"}})
	expectRedirect(t, rec, exporterURL)
	if h.cookie == nil || len(h.cookie.String()) > 4096 {
		t.Fatalf("expected a session cookie under 4096 bytes, got %d", len(h.cookie.String()))
	}

	var body struct {
		Data stepData `json:"data"`
	}
	if err := json.Unmarshal(h.get(exporterURL).Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Data.Addresses) != 25 || body.Data.Addresses[0].Postcode != "NE1 1AA" {
		t.Fatalf("expected 25 addresses for NE1 1AA, got %d", len(body.Data.Addresses))
	}
	if got := h.ref.lookups; len(got) != 1 || got[0] != "NE1 1AA" {
		t.Fatalf("expected one lookup of the normalised postcode, got %v", got)
	}
}

func TestAddressLookupFailureStillRendersStep(t *testing.T) {
	h := newHarness(t)
	h.docs.put(draftCatchCertificate(ccDoc))
	tok := h.token(exporterURL)
	expectRedirect(t, h.post(exporterURL, url.Values{"csrf": {tok}, "_action": {"findAddress"}, "postcode": {"NE1 1AA"}}), exporterURL)

	h.ref.err = errors.New("reference service down")
	rec := h.get(exporterURL)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Data stepData `json:"data"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if len(body.Data.Addresses) != 0 {
		t.Fatalf("expected no addresses, got %+v", body.Data.Addresses)
	}
}

func TestLookupForbiddenIs403(t *testing.T) {
	h := newHarness(t)
	h.token(ccDashboard)
	h.ref.err = &upstream.Error{StatusCode: http.StatusForbidden}

	rec := h.get("/api/commodity-codes?speciesCode=COD")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if kinds := h.events.kinds(); len(kinds) != 1 || kinds[0] != authn.EventUpstreamForbidden {
		t.Fatalf("expected an upstream forbidden event, got %v", kinds)
	}

	h.ref.err = errors.New("connection refused")
	if rec := h.get("/api/commodity-codes?speciesCode=COD"); rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
}

func TestLogoutClearsSession(t *testing.T) {
	h := newHarness(t)
	h.token(ccDashboard)
	rec := h.get("/logout")
	expectRedirect(t, rec, "https://signed-out.example")
	if h.cookie != nil {
		t.Fatalf("expected session cookie to be cleared")
	}
}
