package handlers

import (
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DEFRA/eutd-mmo-fes-external-frontend-sub005/pkg/authn"
	"github.com/DEFRA/eutd-mmo-fes-external-frontend-sub005/pkg/document"
	"github.com/DEFRA/eutd-mmo-fes-external-frontend-sub005/pkg/journey"
	"github.com/DEFRA/eutd-mmo-fes-external-frontend-sub005/pkg/validation"
	"github.com/DEFRA/eutd-mmo-fes-external-frontend-sub005/services/frontend/internal/upstream"
)

const (
	actionSaveAndContinue = "saveAndContinue"
	actionSaveAsDraft     = "saveAsDraft"
	actionFindAddress     = "findAddress"
)

// formStep is a wizard page that writes one upstream section.
type formStep struct {
	slug    string
	section string
	fields  []string
	// list steps append an item instead of replacing the section.
	list      bool
	countries bool
	prefill   func(d *document.Document) map[string]string
	items     func(d *document.Document) any
}

var formSteps = map[string]formStep{}

func register(s formStep) { formSteps[s.slug] = s }

func init() {
	register(formStep{
		slug:    "add-your-reference",
		section: "userReference",
		fields:  []string{"userReference"},
		prefill: func(d *document.Document) map[string]string {
			return map[string]string{"userReference": d.UserReference}
		},
	})
	register(formStep{
		slug:    "add-exporter-details",
		section: "exporter",
		fields:  []string{"exporterFullName", "exporterCompanyName", "addressOne", "townCity", "postcode"},
		prefill: func(d *document.Document) map[string]string {
			e := d.Exporter
			if e == nil {
				return nil
			}
			return map[string]string{
				"exporterFullName":    e.ExporterFullName,
				"exporterCompanyName": e.ExporterCompanyName,
				"addressOne":          e.AddressOne,
				"townCity":            e.TownCity,
				"postcode":            e.Postcode,
			}
		},
	})
	register(formStep{
		slug:    "what-are-you-exporting",
		section: "products",
		fields:  []string{"species", "speciesCode", "commodityCode", "state", "presentation"},
		list:    true,
		items:   func(d *document.Document) any { return d.Products },
	})
	register(formStep{
		slug:      "whose-waters-were-they-caught-in",
		section:   "conservation",
		fields:    []string{"caughtIn", "conservationReference"},
		countries: true,
		prefill: func(d *document.Document) map[string]string {
			if d.Conservation == nil {
				return nil
			}
			return map[string]string{"caughtIn": d.Conservation.CaughtIn, "conservationReference": d.Conservation.Reference}
		},
	})
	register(formStep{
		slug:      "how-does-the-export-leave-the-uk",
		section:   "transportType",
		fields:    []string{"vehicle", "exportedFrom", "exportedTo"},
		countries: true,
		prefill: func(d *document.Document) map[string]string {
			if d.Transport == nil {
				return nil
			}
			return map[string]string{"vehicle": d.Transport.Vehicle, "exportedFrom": d.Transport.ExportedFrom, "exportedTo": d.Transport.ExportedTo}
		},
	})
	register(formStep{
		slug:    "add-transportation-details",
		section: "transportDetails",
		fields: []string{
			"nationalityOfVehicle", "registrationNumber", "flightNumber", "containerNumbers",
			"railwayBillNumber", "vesselName", "flagState", "departurePlace",
		},
		countries: true,
		prefill: func(d *document.Document) map[string]string {
			t := d.Transport
			if t == nil {
				return nil
			}
			return map[string]string{
				"vehicle":              t.Vehicle,
				"nationalityOfVehicle": t.Nationality,
				"registrationNumber":   t.Registration,
				"flightNumber":         t.FlightNumber,
				"containerNumbers":     t.ContainerNumbers,
				"railwayBillNumber":    t.RailwayBillNumber,
				"vesselName":           t.VesselName,
				"flagState":            t.FlagState,
				"departurePlace":       t.DeparturePlace,
			}
		},
	})
	register(formStep{
		slug:    "add-consignment-details",
		section: "consignment",
		fields:  []string{"description"},
		prefill: func(d *document.Document) map[string]string {
			if d.Consignment == nil {
				return nil
			}
			return map[string]string{"description": d.Consignment.Description}
		},
	})
	register(formStep{
		slug:    "add-catch-details",
		section: "catches",
		fields: []string{
			"species", "catchCertificateNumber", "totalWeightLanded",
			"exportWeightBeforeProcessing", "exportWeightAfterProcessing",
		},
		list:  true,
		items: func(d *document.Document) any { return d.Catches },
	})
	register(formStep{
		slug:    "add-processing-plant-details",
		section: "processingPlant",
		fields:  []string{"plantName", "plantApprovalNumber", "personResponsibleForConsignment"},
		prefill: func(d *document.Document) map[string]string {
			p := d.ProcessingPlant
			if p == nil {
				return nil
			}
			return map[string]string{
				"plantName":                       p.PlantName,
				"plantApprovalNumber":             p.PlantApprovalNumber,
				"personResponsibleForConsignment": p.PersonResponsible,
			}
		},
	})
	register(formStep{
		slug:    "add-processing-plant-address",
		section: "processingPlantAddress",
		fields:  []string{"plantAddressOne", "plantTownCity", "plantPostcode"},
		prefill: func(d *document.Document) map[string]string {
			p := d.ProcessingPlant
			if p == nil {
				return nil
			}
			return map[string]string{"plantAddressOne": p.PlantAddressOne, "plantTownCity": p.PlantTownCity, "plantPostcode": p.PlantPostcode}
		},
	})
	register(formStep{
		slug:    "add-health-certificate",
		section: "healthCertificate",
		fields:  []string{"healthCertificateNumber", "healthCertificateDate"},
		prefill: func(d *document.Document) map[string]string {
			h := d.HealthCertificate
			if h == nil {
				return nil
			}
			return map[string]string{"healthCertificateNumber": h.Number, "healthCertificateDate": h.Date}
		},
	})
	register(formStep{
		slug:      "what-export-destination",
		section:   "exportDestination",
		fields:    []string{"exportDestination"},
		countries: true,
		prefill: func(d *document.Document) map[string]string {
			return map[string]string{"exportDestination": d.ExportDestination}
		},
	})
	register(formStep{
		slug:    "add-product-to-this-consignment",
		section: "products",
		fields:  []string{"species", "commodityCode", "certificateNumber", "productWeight"},
		list:    true,
		items:   func(d *document.Document) any { return d.Products },
	})
	register(formStep{
		slug:    "add-storage-facility-details",
		section: "storageFacilities",
		fields: []string{
			"facilityName", "facilityAddressOne", "facilityTownCity",
			"facilityPostcode", "facilityArrivalDate",
		},
		list:  true,
		items: func(d *document.Document) any { return d.StorageFacilities },
	})
}

func (st formStep) payload(form map[string][]string) map[string]string {
	out := make(map[string]string, len(st.fields))
	for _, f := range st.fields {
		if vs := form[f]; len(vs) > 0 {
			out[f] = vs[0]
		}
	}
	return out
}

// stepData is what a step page shows besides its fields.
type stepData struct {
	Items     any                `json:"items,omitempty"`
	Countries []upstream.Country `json:"countries,omitempty"`
	Addresses []upstream.Address `json:"addresses,omitempty"`
}

// loadStep fetches the document and, when the step needs them, the country
// list and the addresses for a looked-up postcode in parallel.
func (p *page) loadStep(st formStep) (*document.Document, stepData, bool) {
	var (
		doc       *document.Document
		countries []upstream.Country
		addresses []upstream.Address
	)
	g, ctx := errgroup.WithContext(p.ctx())
	g.Go(func() error {
		var err error
		doc, err = p.s.docs.GetDocument(ctx, p.doc)
		return err
	})
	if st.countries {
		g.Go(func() error {
			var err error
			countries, err = p.s.docs.ListCountries(ctx)
			return err
		})
	}
	if postcode := p.sess.Get(addressLookupKey(p.doc)); postcode != "" && st.slug == "add-exporter-details" {
		g.Go(func() error {
			var err error
			addresses, err = p.s.ref.LookupAddresses(ctx, postcode)
			if err != nil {
				p.log.Warn("address lookup failed", zap.String("document_number", p.doc), zap.Error(err))
				addresses = nil
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		p.fail(err)
		return nil, stepData{}, false
	}
	if !doc.IsDraft() {
		p.redirect(journey.DashboardURL(p.j))
		return nil, stepData{}, false
	}
	data := stepData{Countries: countries, Addresses: addresses}
	if st.items != nil {
		data.Items = st.items(doc)
	}
	return doc, data, true
}

func (p *page) stepView(st formStep, fields map[string]string, data stepData) View {
	v := p.view(st.slug)
	v.BackURL = journey.Back(p.j, p.doc, st.slug)
	v.Fields = fields
	v.Data = data
	return v
}

func (s *Server) stepLoader(st formStep) pageFunc {
	return func(p *page) {
		doc, data, ok := p.loadStep(st)
		if !ok {
			return
		}
		var fields map[string]string
		if st.prefill != nil {
			fields = st.prefill(doc)
		}
		p.render(200, p.stepView(st, fields, data))
	}
}

func (s *Server) stepAction(st formStep) pageFunc {
	return func(p *page) {
		if !p.readForm() {
			return
		}
		payload := st.payload(p.form)
		switch p.action() {
		case actionSaveAsDraft:
			if err := p.save(st, payload, true); err != nil {
				if _, isValidation := upstream.IsValidation(err); !isValidation {
					p.fail(err)
					return
				}
			}
			p.redirect(journey.DashboardURL(p.j))
		case actionFindAddress:
			p.findAddress(st)
		default:
			err := p.save(st, payload, false)
			if errs, isValidation := upstream.IsValidation(err); isValidation {
				p.rerenderStep(st, payload, errs)
				return
			}
			if err != nil {
				p.fail(err)
				return
			}
			p.sess.Unset(addressLookupKey(p.doc))
			p.redirect(journey.Next(p.j, p.doc, st.slug))
		}
	}
}

func (p *page) save(st formStep, payload map[string]string, draft bool) error {
	if st.list {
		_, err := p.s.docs.AddItem(p.ctx(), p.doc, st.section, payload, draft)
		return err
	}
	return p.s.docs.SaveSection(p.ctx(), p.doc, st.section, payload, draft)
}

// rerenderStep answers 400 with the user's input echoed back beside the errors.
func (p *page) rerenderStep(st formStep, payload map[string]string, errs validation.Errors) {
	_, data, ok := p.loadStep(st)
	if !ok {
		return
	}
	v := p.stepView(st, payload, data)
	v.withErrors(errs)
	p.render(400, v)
}

func addressLookupKey(documentNumber string) string { return "addressLookup-" + documentNumber }

// findAddress remembers the postcode for the loader to look up.
func (p *page) findAddress(st formStep) {
	postcode := strings.ToUpper(strings.TrimSpace(p.form.Get("postcode")))
	if postcode == "" {
		p.rerenderStep(st, st.payload(p.form), validation.Errors{validation.New("postcode", "any.required")})
		return
	}
	if !p.s.limiter.Allow(p.sess.ID) {
		p.record(authn.EventRateLimited, "address lookup")
		p.rerenderStep(st, st.payload(p.form), validation.Errors{validation.New("postcode", "rateLimited")})
		return
	}
	p.sess.Set(addressLookupKey(p.doc), postcode)
	p.redirect(journey.StepURL(p.j, p.doc, st.slug))
}
