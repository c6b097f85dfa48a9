package handlers

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/DEFRA/eutd-mmo-fes-external-frontend-sub005/pkg/authn"
	"github.com/DEFRA/eutd-mmo-fes-external-frontend-sub005/pkg/httpx"
	"github.com/DEFRA/eutd-mmo-fes-external-frontend-sub005/pkg/ratelimit"
	"github.com/DEFRA/eutd-mmo-fes-external-frontend-sub005/pkg/validation"
	"github.com/DEFRA/eutd-mmo-fes-external-frontend-sub005/services/frontend/internal/upstream"
)

func (s *Server) privacyLoader(p *page) {
	v := p.view("privacy-notice")
	v.Fields = map[string]string{"nextUri": localPath(p.r.URL.Query().Get("nextUri"), "/")}
	p.render(200, v)
}

func (s *Server) privacyAction(p *page) {
	if !p.readForm() {
		return
	}
	next := localPath(p.form.Get("nextUri"), "/")
	if p.form.Get("agreePrivacy") != "true" {
		v := p.view("privacy-notice")
		v.Fields = map[string]string{"nextUri": next}
		v.withErrors(validation.Errors{validation.New("agreePrivacy", "any.required")})
		p.render(400, v)
		return
	}
	if err := s.docs.SaveUserAttribute(p.ctx(), privacyAttribute, "true"); err != nil {
		p.fail(err)
		return
	}
	p.redirect(next)
}

// api answers a lookup with JSON, keeping the session cookie current.
func (p *page) api(v any, err error) {
	if errors.Is(err, upstream.ErrForbidden) {
		p.record(authn.EventUpstreamForbidden, err.Error())
		httpx.WriteError(p.w, p.r, http.StatusForbidden, "FORBIDDEN", "forbidden", nil)
		return
	}
	if err != nil {
		p.log.Warn("lookup failed", zap.Error(err))
		httpx.WriteError(p.w, p.r, http.StatusBadGateway, "UPSTREAM_ERROR", "lookup failed", nil)
		return
	}
	cookie, cerr := p.cookie()
	if cerr != nil {
		p.log.Error("commit session", zap.Error(cerr))
	}
	if cookie != nil {
		http.SetCookie(p.w, cookie)
	}
	httpx.WriteJSON(p.w, http.StatusOK, v)
}

func (p *page) query(key string) string { return strings.TrimSpace(p.r.URL.Query().Get(key)) }

func (s *Server) speciesAPI(p *page) {
	out, err := s.docs.SearchSpecies(p.ctx(), p.query("q"))
	p.api(out, err)
}

func (s *Server) vesselsAPI(p *page) {
	out, err := s.docs.SearchVessels(p.ctx(), p.query("q"), p.query("landedOn"))
	p.api(out, err)
}

func (s *Server) countriesAPI(p *page) {
	out, err := s.docs.ListCountries(p.ctx())
	p.api(out, err)
}

func (s *Server) addressesAPI(p *page) {
	postcode := p.query("postcode")
	if postcode == "" {
		httpx.WriteError(p.w, p.r, http.StatusBadRequest, "BAD_REQUEST", "postcode is required", nil)
		return
	}
	if !ratelimit.Enforce(p.w, p.r, s.limiter, p.sess.ID) {
		p.record(authn.EventRateLimited, "address lookup")
		return
	}
	out, err := s.ref.LookupAddresses(p.ctx(), strings.ToUpper(postcode))
	p.api(out, err)
}

func (s *Server) commodityCodesAPI(p *page) {
	code := p.query("speciesCode")
	if code == "" {
		httpx.WriteError(p.w, p.r, http.StatusBadRequest, "BAD_REQUEST", "speciesCode is required", nil)
		return
	}
	out, err := s.ref.CommodityCodes(p.ctx(), code)
	p.api(out, err)
}
