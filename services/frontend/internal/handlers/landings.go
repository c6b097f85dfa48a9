package handlers

import (
	"github.com/DEFRA/eutd-mmo-fes-external-frontend-sub005/pkg/document"
	"github.com/DEFRA/eutd-mmo-fes-external-frontend-sub005/pkg/journey"
	"github.com/DEFRA/eutd-mmo-fes-external-frontend-sub005/pkg/validation"
	"github.com/DEFRA/eutd-mmo-fes-external-frontend-sub005/services/frontend/internal/upstream"
)

const (
	keyLandingID   = "landingId"
	keyEditLanding = "editLanding"

	actionEdit       = "edit"
	actionRemove     = "remove"
	actionCancel     = "cancel"
	actionAddLanding = "addLanding"
)

var landingFields = []string{"productId", "vesselName", "pln", "dateLanded", "exportWeight", "faoArea"}

func pendingLandingsTypeKey(documentNumber string) string {
	return "landingsEntryOption-" + documentNumber
}

func (s *Server) landingsOptions() []string {
	opts := []string{document.LandingsDirect, document.LandingsManual}
	if s.features.UploadLandings {
		opts = append(opts, document.LandingsUpload)
	}
	return opts
}

func (s *Server) validLandingsOption(v string) bool {
	for _, o := range s.landingsOptions() {
		if o == v {
			return true
		}
	}
	return false
}

type landingsEntryData struct {
	Options []string `json:"options"`
}

func (s *Server) landingsEntryLoader(p *page) {
	doc, ok := p.loadDraft()
	if !ok {
		return
	}
	v := p.view("landings-entry")
	v.BackURL = journey.Back(p.j, p.doc, "landings-entry")
	v.Fields = map[string]string{"landingsEntryOption": doc.LandingsEntryOption}
	v.Data = landingsEntryData{Options: s.landingsOptions()}
	p.render(200, v)
}

func (s *Server) landingsEntryAction(p *page) {
	if !p.readForm() {
		return
	}
	doc, ok := p.loadDraft()
	if !ok {
		return
	}
	option := p.form.Get("landingsEntryOption")
	if p.action() == actionSaveAsDraft {
		if s.validLandingsOption(option) && doc.LandingsEntryOption == "" {
			if err := s.docs.SaveSection(p.ctx(), p.doc, "landingsEntryOption", map[string]string{"landingsEntryOption": option}, true); err != nil {
				if _, isValidation := upstream.IsValidation(err); !isValidation {
					p.fail(err)
					return
				}
			}
		}
		p.redirect(journey.DashboardURL(p.j))
		return
	}
	if !s.validLandingsOption(option) {
		v := p.view("landings-entry")
		v.BackURL = journey.Back(p.j, p.doc, "landings-entry")
		v.Fields = map[string]string{"landingsEntryOption": option}
		v.Data = landingsEntryData{Options: s.landingsOptions()}
		v.withErrors(validation.Errors{validation.New("landingsEntryOption", "any.required")})
		p.render(400, v)
		return
	}
	// Changing an existing choice discards landings upstream, so ask first.
	if doc.LandingsEntryOption != "" && doc.LandingsEntryOption != option {
		p.sess.Set(pendingLandingsTypeKey(p.doc), option)
		p.redirect(journey.StepURL(p.j, p.doc, "landings-type-confirmation"))
		return
	}
	if doc.LandingsEntryOption != option {
		if err := s.docs.SaveSection(p.ctx(), p.doc, "landingsEntryOption", map[string]string{"landingsEntryOption": option}, false); err != nil {
			p.fail(err)
			return
		}
	}
	p.redirect(journey.Next(p.j, p.doc, "landings-entry"))
}

// landingsConfirmData flags whether confirming drops landings already entered.
type landingsConfirmData struct {
	Current          string `json:"current"`
	Pending          string `json:"pending"`
	DiscardsLandings bool   `json:"discardsLandings"`
}

func (s *Server) landingsConfirmLoader(p *page) {
	doc, ok := p.loadDraft()
	if !ok {
		return
	}
	pending := p.sess.Get(pendingLandingsTypeKey(p.doc))
	if pending == "" {
		p.redirect(journey.StepURL(p.j, p.doc, "landings-entry"))
		return
	}
	v := p.view("landings-type-confirmation")
	v.BackURL = journey.StepURL(p.j, p.doc, "landings-entry")
	v.Data = landingsConfirmData{Current: doc.LandingsEntryOption, Pending: pending, DiscardsLandings: doc.HasLandings()}
	p.render(200, v)
}

func (s *Server) landingsConfirmAction(p *page) {
	if !p.readForm() {
		return
	}
	pending := p.sess.Get(pendingLandingsTypeKey(p.doc))
	if pending == "" {
		p.redirect(journey.StepURL(p.j, p.doc, "landings-entry"))
		return
	}
	switch p.form.Get("answer") {
	case "Yes":
		if err := s.docs.SaveSection(p.ctx(), p.doc, "landingsEntryOption", map[string]string{"landingsEntryOption": pending}, false); err != nil {
			p.fail(err)
			return
		}
		p.sess.Unset(pendingLandingsTypeKey(p.doc))
		p.redirect(journey.Next(p.j, p.doc, "landings-entry"))
	case "No":
		p.sess.Unset(pendingLandingsTypeKey(p.doc))
		p.redirect(journey.ProgressURL(p.j, p.doc))
	default:
		v := p.view("landings-type-confirmation")
		v.BackURL = journey.StepURL(p.j, p.doc, "landings-entry")
		v.withErrors(validation.Errors{validation.New("answer", "any.required")})
		p.render(400, v)
	}
}

type addLandingsData struct {
	Products []document.Product `json:"products"`
	Editing  string             `json:"editing,omitempty"`
}

func (s *Server) addLandingsLoader(p *page) {
	doc, ok := p.loadDraft()
	if !ok {
		return
	}
	p.render(200, p.addLandingsView(doc, nil))
}

// addLandingsView prefills from the landing being edited unless the caller
// echoes submitted fields.
func (p *page) addLandingsView(doc *document.Document, fields map[string]string) View {
	v := p.view("add-landings")
	v.BackURL = journey.Back(p.j, p.doc, "add-landings")
	data := addLandingsData{Products: doc.Products}
	if id := p.sess.Get(keyLandingID); id != "" && p.sess.Get(keyEditLanding) == "true" {
		if product, l, found := doc.FindLanding(id); found {
			data.Editing = id
			if fields == nil {
				fields = map[string]string{
					"productId":    product.ID,
					"vesselName":   l.VesselName,
					"pln":          l.PLN,
					"dateLanded":   l.DateLanded,
					"exportWeight": l.ExportWeight,
					"faoArea":      l.FAOArea,
				}
			}
		}
	}
	v.Fields = fields
	v.Data = data
	return v
}

func (p *page) clearLandingEdit() {
	p.sess.Unset(keyLandingID)
	p.sess.Unset(keyEditLanding)
}

func (s *Server) addLandingsAction(p *page) {
	if !p.readForm() {
		return
	}
	self := journey.StepURL(p.j, p.doc, "add-landings")
	switch p.action() {
	case actionEdit:
		p.sess.Set(keyLandingID, p.form.Get("landingId"))
		p.sess.Set(keyEditLanding, "true")
		p.redirect(self)
		return
	case actionCancel:
		p.clearLandingEdit()
		p.redirect(self)
		return
	case actionRemove:
		id := p.form.Get("landingId")
		if err := s.docs.RemoveItem(p.ctx(), p.doc, "landings", id); err != nil {
			p.fail(err)
			return
		}
		if p.sess.Get(keyLandingID) == id {
			p.clearLandingEdit()
		}
		p.redirect(self)
		return
	}

	payload := map[string]string{}
	for _, f := range landingFields {
		if v := p.form.Get(f); v != "" {
			payload[f] = v
		}
	}
	draft := p.action() == actionSaveAsDraft
	if len(payload) > 0 {
		err := p.saveLanding(payload, draft)
		if errs, isValidation := upstream.IsValidation(err); isValidation {
			if draft {
				p.redirect(journey.DashboardURL(p.j))
				return
			}
			doc, ok := p.loadDraft()
			if !ok {
				return
			}
			v := p.addLandingsView(doc, payload)
			v.withErrors(errs)
			p.render(400, v)
			return
		}
		if err != nil {
			p.fail(err)
			return
		}
		p.clearLandingEdit()
	}
	switch {
	case draft:
		p.redirect(journey.DashboardURL(p.j))
	case p.action() == actionAddLanding:
		p.redirect(self)
	default:
		p.redirect(journey.Next(p.j, p.doc, "add-landings"))
	}
}

// saveLanding updates the landing under edit, or adds a new one.
func (p *page) saveLanding(payload map[string]string, draft bool) error {
	if id := p.sess.Get(keyLandingID); id != "" && p.sess.Get(keyEditLanding) == "true" {
		return p.s.docs.UpdateItem(p.ctx(), p.doc, "landings", id, payload, draft)
	}
	_, err := p.s.docs.AddItem(p.ctx(), p.doc, "landings", payload, draft)
	return err
}
