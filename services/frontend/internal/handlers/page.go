package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DEFRA/eutd-mmo-fes-external-frontend-sub005/pkg/authn"
	"github.com/DEFRA/eutd-mmo-fes-external-frontend-sub005/pkg/csrf"
	"github.com/DEFRA/eutd-mmo-fes-external-frontend-sub005/pkg/document"
	"github.com/DEFRA/eutd-mmo-fes-external-frontend-sub005/pkg/httpx"
	"github.com/DEFRA/eutd-mmo-fes-external-frontend-sub005/pkg/journey"
	"github.com/DEFRA/eutd-mmo-fes-external-frontend-sub005/pkg/session"
	"github.com/DEFRA/eutd-mmo-fes-external-frontend-sub005/pkg/validation"
	"github.com/DEFRA/eutd-mmo-fes-external-frontend-sub005/services/frontend/internal/upstream"
)

const keyAccessToken = "accessToken"

// View is the model a loader hands to the renderer.
type View struct {
	Page           string                      `json:"page"`
	Journey        journey.Journey             `json:"journey,omitempty"`
	DocumentNumber string                      `json:"documentNumber,omitempty"`
	CSRF           string                      `json:"csrf,omitempty"`
	BackURL        string                      `json:"backUrl,omitempty"`
	Fields         map[string]string           `json:"fields,omitempty"`
	Errors         map[string]validation.Error `json:"errors,omitempty"`
	ErrorSummary   []validation.SummaryItem    `json:"errorSummary,omitempty"`
	Notification   string                      `json:"notification,omitempty"`
	Data           any                         `json:"data,omitempty"`
}

func (v *View) withErrors(errs validation.Errors) {
	if len(errs) == 0 {
		return
	}
	v.Errors = errs.ByKey()
	v.ErrorSummary = errs.Summary()
}

// page is the per-request state shared by loaders and actions.
type page struct {
	s    *Server
	w    http.ResponseWriter
	r    *http.Request
	sess *session.Session
	log  *zap.Logger
	j    journey.Journey
	doc  string
	form url.Values
}

type pageFunc func(p *page)

func (s *Server) open(w http.ResponseWriter, r *http.Request) (*page, bool) {
	log := s.log.With(zap.String("request_id", httpx.RequestID(r)))
	sess, err := s.sessions.Get(r.Context(), r)
	if err != nil {
		log.Error("load session", zap.Error(err))
		problem(w)
		return nil, false
	}
	if tok, ok := authn.ParseBearerToken(r.Header.Get("Authorization")); ok {
		sess.Set(keyAccessToken, tok)
	}
	return &page{s: s, w: w, r: r, sess: sess, log: log}, true
}

func (s *Server) page(fn pageFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := s.open(w, r)
		if !ok {
			return
		}
		fn(p)
	}
}

func (s *Server) journeyPage(j journey.Journey, fn pageFunc) http.HandlerFunc {
	return s.page(func(p *page) {
		p.j = j
		fn(p)
	})
}

// documentPage binds the {documentNumber} URL parameter and rejects numbers
// that belong to another journey.
func (s *Server) documentPage(j journey.Journey, fn pageFunc) http.HandlerFunc {
	return s.page(func(p *page) {
		p.j = j
		p.doc = strings.TrimSpace(chi.URLParam(p.r, "documentNumber"))
		if got, err := journey.FromDocumentNumber(p.doc); err != nil || got != j {
			p.notFound()
			return
		}
		p.log = p.log.With(zap.String("document_number", p.doc))
		fn(p)
	})
}

func (p *page) ctx() context.Context {
	return upstream.WithToken(p.r.Context(), p.sess.Get(keyAccessToken))
}

// cookie saves the session when it changed. A nil cookie means nothing to send.
func (p *page) cookie() (*http.Cookie, error) {
	if !p.sess.Dirty() {
		return nil, nil
	}
	return p.s.sessions.Commit(p.r.Context(), p.sess)
}

func (p *page) render(status int, v View) {
	cookie, err := p.cookie()
	if err != nil {
		p.log.Error("commit session", zap.Error(err))
		problem(p.w)
		return
	}
	if cookie != nil {
		http.SetCookie(p.w, cookie)
	}
	if v.Journey == "" {
		v.Journey = p.j
	}
	if v.DocumentNumber == "" {
		v.DocumentNumber = p.doc
	}
	httpx.WriteJSON(p.w, status, v)
}

// view starts a view model carrying a fresh CSRF token.
func (p *page) view(name string) View {
	return View{Page: name, CSRF: csrf.Issue(p.sess)}
}

func (p *page) redirect(location string) {
	cookie, err := p.cookie()
	if err != nil {
		p.log.Error("commit session", zap.Error(err))
		problem(p.w)
		return
	}
	httpx.Redirect(p.w, p.r, location, cookie)
}

// readForm parses the body and checks the CSRF token. On false the response
// has already been written.
func (p *page) readForm() bool {
	form, err := httpx.ReadForm(p.w, p.r)
	if err != nil {
		if errors.Is(err, httpx.ErrFormTooLarge) {
			httpx.WriteError(p.w, p.r, http.StatusRequestEntityTooLarge, "FORM_TOO_LARGE", "form body too large", nil)
			return false
		}
		httpx.WriteError(p.w, p.r, http.StatusBadRequest, "BAD_FORM", err.Error(), nil)
		return false
	}
	if err := csrf.Validate(p.sess, csrf.FromForm(form)); err != nil {
		p.record(authn.EventCSRFRejected, err.Error())
		p.redirect(journey.ForbiddenURL)
		return false
	}
	p.form = form
	return true
}

func (p *page) action() string {
	if a := p.form.Get("_action"); a != "" {
		return a
	}
	return actionSaveAndContinue
}

func (p *page) record(kind, reason string) {
	ev := authn.Event{
		Kind:      kind,
		Endpoint:  p.r.Method + " " + p.r.URL.Path,
		SessionID: p.sess.ID,
		TokenHash: authn.HashToken(p.sess.Get(keyAccessToken)),
		Reason:    reason,
	}
	if p.doc != "" {
		ev.Details = map[string]any{"document_number": p.doc}
	}
	if err := p.s.events.Record(p.r.Context(), ev); err != nil {
		p.log.Warn("record security event", zap.Error(err))
	}
}

// fail maps an upstream failure onto the response every page shares.
func (p *page) fail(err error) {
	switch {
	case errors.Is(err, upstream.ErrForbidden):
		p.record(authn.EventUpstreamForbidden, err.Error())
		p.redirect(journey.ForbiddenURL)
	case errors.Is(err, upstream.ErrNotFound):
		p.notFound()
	default:
		p.log.Error("request failed", zap.Error(err))
		problem(p.w)
	}
}

func (p *page) notFound() {
	httpx.WriteJSON(p.w, http.StatusNotFound, View{Page: "not-found"})
}

func problem(w http.ResponseWriter) {
	httpx.WriteJSON(w, http.StatusInternalServerError, View{
		Page: "problem",
		Data: map[string]string{"message": "there is a problem with the service"},
	})
}

func (p *page) loadDocument() (*document.Document, bool) {
	doc, err := p.s.docs.GetDocument(p.ctx(), p.doc)
	if err != nil {
		p.fail(err)
		return nil, false
	}
	return doc, true
}

// loadDraft loads the document and sends users of a non-draft document away.
func (p *page) loadDraft() (*document.Document, bool) {
	doc, ok := p.loadDocument()
	if !ok {
		return nil, false
	}
	if !doc.IsDraft() {
		p.redirect(journey.DashboardURL(p.j))
		return nil, false
	}
	return doc, true
}

// localPath keeps redirects on this site.
func localPath(raw, fallback string) string {
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.Contains(raw, "\\") {
		return fallback
	}
	return raw
}
