package handlers

import (
	"net/url"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/DEFRA/eutd-mmo-fes-external-frontend-sub005/pkg/document"
	"github.com/DEFRA/eutd-mmo-fes-external-frontend-sub005/pkg/journey"
	"github.com/DEFRA/eutd-mmo-fes-external-frontend-sub005/pkg/progress"
	"github.com/DEFRA/eutd-mmo-fes-external-frontend-sub005/pkg/validation"
	"github.com/DEFRA/eutd-mmo-fes-external-frontend-sub005/services/frontend/internal/upstream"
)

const (
	privacyAttribute = "privacy_statement"
	keyNotification  = "notification"
)

func copyAcknowledgedKey(documentNumber string) string {
	return "copyDocumentAcknowledged-" + documentNumber
}

func submittedKey(documentNumber string) string { return "submitted-" + documentNumber }

// forgetDocument drops the per-document bookkeeping keys except the submit
// marker, which must outlive the document's draft state.
func (p *page) forgetDocument() {
	suffix := "-" + p.doc
	for _, k := range p.sess.Keys() {
		if strings.HasSuffix(k, suffix) && k != submittedKey(p.doc) {
			p.sess.Unset(k)
		}
	}
}

type dashboardData struct {
	Drafts    []upstream.DocumentSummary `json:"drafts"`
	Completed []upstream.DocumentSummary `json:"completed"`
}

func (s *Server) dashboardLoader(p *page) {
	var (
		docs  []upstream.DocumentSummary
		attrs map[string]string
	)
	g, ctx := errgroup.WithContext(p.ctx())
	g.Go(func() error {
		var err error
		attrs, err = s.docs.GetUserAttributes(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		docs, err = s.docs.ListDocuments(ctx, p.j)
		return err
	})
	if err := g.Wait(); err != nil {
		p.fail(err)
		return
	}
	if attrs[privacyAttribute] != "true" {
		p.redirect("/privacy-notice?nextUri=" + url.QueryEscape(journey.DashboardURL(p.j)))
		return
	}
	var data dashboardData
	for _, d := range docs {
		switch d.Status {
		case document.StatusDraft:
			data.Drafts = append(data.Drafts, d)
		case document.StatusComplete:
			data.Completed = append(data.Completed, d)
		}
	}
	v := p.view("dashboard")
	v.Data = data
	if n, ok := p.sess.TakeFlash(keyNotification); ok {
		v.Notification = n
	}
	p.render(200, v)
}

func (s *Server) dashboardAction(p *page) {
	if !p.readForm() {
		return
	}
	num, err := s.docs.CreateDraft(p.ctx(), p.j)
	if err != nil {
		p.fail(err)
		return
	}
	p.redirect(journey.ProgressURL(p.j, num))
}

type progressData struct {
	Report    progress.Report `json:"report"`
	ResumeURL string          `json:"resumeUrl"`
}

func (s *Server) progressLoader(p *page) {
	doc, ok := p.loadDraft()
	if !ok {
		return
	}
	report := progress.Compute(p.j, doc)
	v := p.view("progress")
	v.BackURL = journey.DashboardURL(p.j)
	v.Data = progressData{Report: report, ResumeURL: report.ResumeURL()}
	p.render(200, v)
}

func (s *Server) progressAction(p *page) {
	if !p.readForm() {
		return
	}
	doc, ok := p.loadDraft()
	if !ok {
		return
	}
	report := progress.Compute(p.j, doc)
	if report.CanCreate {
		p.redirect(journey.CheckYourInformationURL(p.j, p.doc))
		return
	}
	errs := report.MarkIncomplete()
	v := p.view("progress")
	v.BackURL = journey.DashboardURL(p.j)
	v.Data = progressData{Report: report, ResumeURL: report.ResumeURL()}
	v.withErrors(errs)
	p.render(400, v)
}

const (
	copyOptionCopy = "copyDocument"
	copyOptionVoid = "voidDocumentConfirm"
)

type copyData struct {
	Options []string `json:"options"`
}

func (s *Server) copyOptions() []string {
	if s.features.CopyVoid {
		return []string{copyOptionCopy, copyOptionVoid}
	}
	return []string{copyOptionCopy}
}

func (s *Server) copyLoader(p *page) {
	if _, ok := p.loadDocument(); !ok {
		return
	}
	v := p.view("copy-this-" + p.j.Noun())
	v.BackURL = journey.DashboardURL(p.j)
	v.Data = copyData{Options: s.copyOptions()}
	p.render(200, v)
}

func (s *Server) copyAction(p *page) {
	if !p.readForm() {
		return
	}
	switch choice := p.form.Get("copyDocument"); {
	case choice == copyOptionCopy:
		p.copyDocument(false)
	case choice == copyOptionVoid && s.features.CopyVoid:
		p.sess.Set(copyAcknowledgedKey(p.doc), "true")
		p.redirect(journey.StepURL(p.j, p.doc, "copy-void-confirmation"))
	default:
		v := p.view("copy-this-" + p.j.Noun())
		v.BackURL = journey.DashboardURL(p.j)
		v.Data = copyData{Options: s.copyOptions()}
		v.withErrors(validation.Errors{validation.New("copyDocument", "any.required")})
		p.render(400, v)
	}
}

func (p *page) copyDocument(voidOriginal bool) {
	num, err := p.s.docs.CopyDocument(p.ctx(), p.doc, voidOriginal)
	if err != nil {
		p.fail(err)
		return
	}
	p.sess.Unset(copyAcknowledgedKey(p.doc))
	p.redirect(journey.ProgressURL(p.j, num))
}

// The void confirmation is only reachable after choosing copy-and-void.
func (s *Server) copyVoidLoader(p *page) {
	if p.sess.Get(copyAcknowledgedKey(p.doc)) != "true" {
		p.redirect(journey.CopyURL(p.j, p.doc))
		return
	}
	if _, ok := p.loadDocument(); !ok {
		return
	}
	v := p.view("copy-void-confirmation")
	v.BackURL = journey.CopyURL(p.j, p.doc)
	p.render(200, v)
}

func (s *Server) copyVoidAction(p *page) {
	if !p.readForm() {
		return
	}
	if p.sess.Get(copyAcknowledgedKey(p.doc)) != "true" {
		p.redirect(journey.CopyURL(p.j, p.doc))
		return
	}
	switch p.form.Get("answer") {
	case "Yes":
		p.copyDocument(true)
	case "No":
		p.sess.Unset(copyAcknowledgedKey(p.doc))
		p.redirect(journey.DashboardURL(p.j))
	default:
		v := p.view("copy-void-confirmation")
		v.BackURL = journey.CopyURL(p.j, p.doc)
		v.withErrors(validation.Errors{validation.New("answer", "any.required")})
		p.render(400, v)
	}
}

func (s *Server) deleteDraftLoader(p *page) {
	if _, ok := p.loadDraft(); !ok {
		return
	}
	v := p.view("delete-this-draft-" + p.j.Noun())
	v.BackURL = journey.DashboardURL(p.j)
	p.render(200, v)
}

func (s *Server) deleteDraftAction(p *page) {
	if !p.readForm() {
		return
	}
	switch p.form.Get("answer") {
	case "Yes":
		if err := s.docs.DeleteDraft(p.ctx(), p.doc); err != nil {
			p.fail(err)
			return
		}
		p.forgetDocument()
		p.sess.Flash(keyNotification, "draftDeleted")
		p.redirect(journey.DashboardURL(p.j))
	case "No":
		p.redirect(journey.DashboardURL(p.j))
	default:
		v := p.view("delete-this-draft-" + p.j.Noun())
		v.BackURL = journey.DashboardURL(p.j)
		v.withErrors(validation.Errors{validation.New("answer", "any.required")})
		p.render(400, v)
	}
}

func (s *Server) voidLoader(p *page) {
	doc, ok := p.loadDocument()
	if !ok {
		return
	}
	if doc.Status != document.StatusComplete {
		p.redirect(journey.DashboardURL(p.j))
		return
	}
	v := p.view("void-this-" + p.j.Noun())
	v.BackURL = journey.DashboardURL(p.j)
	p.render(200, v)
}

func (s *Server) voidAction(p *page) {
	if !p.readForm() {
		return
	}
	switch p.form.Get("answer") {
	case "Yes":
		if err := s.docs.VoidDocument(p.ctx(), p.doc); err != nil {
			p.fail(err)
			return
		}
		p.forgetDocument()
		p.sess.Flash(keyNotification, "documentVoided")
		p.redirect(journey.DashboardURL(p.j))
	case "No":
		p.redirect(journey.DashboardURL(p.j))
	default:
		v := p.view("void-this-" + p.j.Noun())
		v.BackURL = journey.DashboardURL(p.j)
		v.withErrors(validation.Errors{validation.New("answer", "any.required")})
		p.render(400, v)
	}
}

type checkData struct {
	Document *document.Document `json:"document"`
	Report   progress.Report    `json:"report"`
}

func (s *Server) checkYourInformationLoader(p *page) {
	if p.sess.Get(submittedKey(p.doc)) == "true" {
		p.redirect(journey.CreatedURL(p.j, p.doc))
		return
	}
	doc, ok := p.loadDraft()
	if !ok {
		return
	}
	report := progress.Compute(p.j, doc)
	if !report.CanCreate {
		p.redirect(journey.ProgressURL(p.j, p.doc))
		return
	}
	v := p.view("check-your-information")
	v.BackURL = journey.ProgressURL(p.j, p.doc)
	v.Data = checkData{Document: doc, Report: report}
	p.render(200, v)
}

func (s *Server) checkYourInformationAction(p *page) {
	if !p.readForm() {
		return
	}
	// A double submit lands on the created page again.
	if p.sess.Get(submittedKey(p.doc)) == "true" {
		p.redirect(journey.CreatedURL(p.j, p.doc))
		return
	}
	res, err := s.docs.Submit(p.ctx(), p.doc)
	if errs, isValidation := upstream.IsValidation(err); isValidation {
		doc, ok := p.loadDraft()
		if !ok {
			return
		}
		doc.ValidationErrors = errs
		v := p.view("check-your-information")
		v.BackURL = journey.ProgressURL(p.j, p.doc)
		v.Data = checkData{Document: doc, Report: progress.Compute(p.j, doc)}
		v.withErrors(errs)
		p.render(400, v)
		return
	}
	if err != nil {
		p.fail(err)
		return
	}
	p.forgetDocument()
	p.sess.Set(submittedKey(p.doc), "true")
	p.redirect(journey.CreatedURL(p.j, res.DocumentNumber))
}

type createdData struct {
	DocumentNumber string `json:"documentNumber"`
	Status         string `json:"status"`
	PDFURL         string `json:"pdfUrl,omitempty"`
}

func (s *Server) createdLoader(p *page) {
	doc, ok := p.loadDocument()
	if !ok {
		return
	}
	if doc.Status == document.StatusDraft && p.sess.Get(submittedKey(p.doc)) != "true" {
		p.redirect(journey.ProgressURL(p.j, p.doc))
		return
	}
	v := View{Page: p.j.Noun() + "-created"}
	v.Data = createdData{DocumentNumber: doc.DocumentNumber, Status: doc.Status, PDFURL: doc.PDFURL}
	p.render(200, v)
}
