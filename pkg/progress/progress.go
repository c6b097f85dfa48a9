// Package progress derives the per-section completion report shown on a
// document's progress page. Compute is pure: it only reads the document.
package progress

import (
	"strings"

	"github.com/DEFRA/eutd-mmo-fes-external-frontend-sub005/pkg/document"
	"github.com/DEFRA/eutd-mmo-fes-external-frontend-sub005/pkg/journey"
	"github.com/DEFRA/eutd-mmo-fes-external-frontend-sub005/pkg/validation"
)

type Status string

const (
	Incomplete  Status = "INCOMPLETE"
	Error       Status = "ERROR"
	Completed   Status = "COMPLETED"
	CannotStart Status = "CANNOT_START"
	Optional    Status = "OPTIONAL"
)

type Section struct {
	Key      string `json:"key"`
	Status   Status `json:"status"`
	Required bool   `json:"required"`
	URL      string `json:"url"`
}

type Report struct {
	Journey           journey.Journey `json:"journey"`
	DocumentNumber    string          `json:"documentNumber"`
	Sections          []Section       `json:"sections"`
	RequiredSections  int             `json:"requiredSections"`
	CompletedSections int             `json:"completedSections"`
	CanCreate         bool            `json:"canCreate"`
}

type sectionDef struct {
	key       string
	step      func(d *document.Document) string
	optional  bool
	dependsOn string
	done      func(d *document.Document) bool
	hasError  func(key string) bool
}

func Compute(j journey.Journey, doc *document.Document) Report {
	if doc == nil {
		doc = &document.Document{}
	}
	r := Report{Journey: j, DocumentNumber: doc.DocumentNumber}
	statuses := map[string]Status{}
	for _, def := range sections[j] {
		st := evaluate(def, doc, statuses)
		statuses[def.key] = st
		r.Sections = append(r.Sections, Section{
			Key:      def.key,
			Status:   st,
			Required: !def.optional,
			URL:      journey.StepURL(j, doc.DocumentNumber, def.step(doc)),
		})
	}
	r.recount()
	return r
}

func evaluate(def sectionDef, doc *document.Document, prior map[string]Status) Status {
	if def.dependsOn != "" && prior[def.dependsOn] != Completed {
		return CannotStart
	}
	for _, e := range doc.ValidationErrors {
		if def.hasError(e.Key) {
			return Error
		}
	}
	if def.done(doc) {
		return Completed
	}
	if def.optional {
		return Optional
	}
	return Incomplete
}

func (r *Report) recount() {
	r.RequiredSections, r.CompletedSections = 0, 0
	for _, s := range r.Sections {
		if !s.Required {
			continue
		}
		r.RequiredSections++
		if s.Status == Completed {
			r.CompletedSections++
		}
	}
	r.CanCreate = r.RequiredSections > 0 && r.CompletedSections == r.RequiredSections
}

// ResumeURL is where "continue" should take the user: the first required
// section that can be worked on, or check-your-information when none is left.
func (r Report) ResumeURL() string {
	for _, s := range r.Sections {
		if s.Required && s.Status != Completed && s.Status != CannotStart {
			return s.URL
		}
	}
	return journey.CheckYourInformationURL(r.Journey, r.DocumentNumber)
}

// MarkIncomplete flags every unfinished required section as ERROR and
// returns one error per flagged section for the summary banner.
func (r *Report) MarkIncomplete() validation.Errors {
	var errs validation.Errors
	for i := range r.Sections {
		s := &r.Sections[i]
		if !s.Required || s.Status == Completed {
			continue
		}
		s.Status = Error
		errs = append(errs, validation.New(s.Key, "error.progress."+s.Key+".incomplete"))
	}
	r.recount()
	return errs
}

func (r Report) Section(key string) (Section, bool) {
	for _, s := range r.Sections {
		if s.Key == key {
			return s, true
		}
	}
	return Section{}, false
}

var sections = map[journey.Journey][]sectionDef{
	journey.CatchCertificate: {
		referenceSection,
		exporterSection,
		{
			key:      "products",
			step:     fixed("what-are-you-exporting"),
			done:     speciesComplete,
			hasError: func(k string) bool { return under("products")(k) && !strings.Contains(k, ".landings") },
		},
		{
			key:       "landings",
			step:      landingsStep,
			dependsOn: "products",
			done:      landingsComplete,
			hasError: func(k string) bool {
				return under("landings", "landingsEntryOption")(k) || strings.Contains(k, ".landings")
			},
		},
		{
			key:      "conservation",
			step:     fixed("whose-waters-were-they-caught-in"),
			done:     func(d *document.Document) bool { return d.Conservation != nil && filled(d.Conservation.CaughtIn) },
			hasError: under("conservation", "caughtIn"),
		},
		transportTypeSection,
		transportDetailsSection,
	},
	journey.ProcessingStatement: {
		referenceSection,
		exporterSection,
		{
			key:      "consignmentDescription",
			step:     fixed("add-consignment-details"),
			done:     func(d *document.Document) bool { return d.Consignment != nil && filled(d.Consignment.Description) },
			hasError: under("consignment", "consignmentDescription"),
		},
		{
			key:      "catches",
			step:     fixed("add-catch-details"),
			done:     catchesComplete,
			hasError: under("catches"),
		},
		{
			key:  "processingPlant",
			step: fixed("add-processing-plant-details"),
			done: func(d *document.Document) bool {
				p := d.ProcessingPlant
				return p != nil && filled(p.PlantName, p.PlantApprovalNumber, p.PersonResponsible)
			},
			hasError: under("plantName", "plantApprovalNumber", "personResponsibleForConsignment"),
		},
		{
			key:  "processingPlantAddress",
			step: fixed("add-processing-plant-address"),
			done: func(d *document.Document) bool {
				p := d.ProcessingPlant
				return p != nil && filled(p.PlantAddressOne, p.PlantPostcode)
			},
			hasError: under("plantAddressOne", "plantTownCity", "plantPostcode"),
		},
		{
			key:  "exportHealthCertificate",
			step: fixed("add-health-certificate"),
			done: func(d *document.Document) bool {
				h := d.HealthCertificate
				return h != nil && filled(h.Number, h.Date)
			},
			hasError: under("healthCertificateNumber", "healthCertificateDate"),
		},
		exportDestinationSection,
	},
	journey.StorageNotes: {
		referenceSection,
		exporterSection,
		{
			key:      "products",
			step:     fixed("add-product-to-this-consignment"),
			done:     storageProductsComplete,
			hasError: under("products", "catches"),
		},
		{
			key:      "storageFacilities",
			step:     fixed("add-storage-facility-details"),
			done:     facilitiesComplete,
			hasError: under("storageFacilities"),
		},
		transportTypeSection,
		transportDetailsSection,
		exportDestinationSection,
	},
}

var (
	referenceSection = sectionDef{
		key:      "reference",
		step:     fixed("add-your-reference"),
		optional: true,
		done:     func(d *document.Document) bool { return filled(d.UserReference) },
		hasError: under("userReference"),
	}
	exporterSection = sectionDef{
		key:  "exporter",
		step: fixed("add-exporter-details"),
		done: func(d *document.Document) bool {
			e := d.Exporter
			return e != nil && filled(e.ExporterFullName, e.AddressOne, e.Postcode)
		},
		hasError: under("exporter", "exporterFullName", "exporterCompanyName", "addressOne", "townCity", "postcode"),
	}
	transportTypeSection = sectionDef{
		key:      "transportType",
		step:     fixed("how-does-the-export-leave-the-uk"),
		done:     func(d *document.Document) bool { return d.Transport != nil && filled(d.Transport.Vehicle) },
		hasError: under("vehicle", "exportedTo", "exportedFrom"),
	}
	transportDetailsSection = sectionDef{
		key:       "transportDetails",
		step:      fixed("add-transportation-details"),
		dependsOn: "transportType",
		done:      transportDetailsComplete,
		hasError:  under("transport", "nationalityOfVehicle", "registrationNumber", "flightNumber", "containerNumbers", "railwayBillNumber", "flagState", "departurePlace"),
	}
	exportDestinationSection = sectionDef{
		key:      "exportDestination",
		step:     fixed("what-export-destination"),
		done:     func(d *document.Document) bool { return filled(d.ExportDestination) },
		hasError: under("exportDestination", "pointOfDestination"),
	}
)

func fixed(slug string) func(*document.Document) string {
	return func(*document.Document) string { return slug }
}

// landingsStep sends the user to the entry choice until one has been made.
func landingsStep(d *document.Document) string {
	if d.LandingsEntryOption == "" {
		return "landings-entry"
	}
	return "add-landings"
}

func under(prefixes ...string) func(string) bool {
	return func(key string) bool {
		for _, p := range prefixes {
			if key == p || strings.HasPrefix(key, p+".") {
				return true
			}
		}
		return false
	}
}

func filled(vs ...string) bool {
	for _, v := range vs {
		if strings.TrimSpace(v) == "" {
			return false
		}
	}
	return true
}

func speciesComplete(d *document.Document) bool {
	if len(d.Products) == 0 {
		return false
	}
	for _, p := range d.Products {
		if !filled(p.Species, p.CommodityCode, p.State, p.Presentation) {
			return false
		}
	}
	return true
}

func landingsComplete(d *document.Document) bool {
	if d.LandingsEntryOption == "" || len(d.Products) == 0 {
		return false
	}
	for _, p := range d.Products {
		if len(p.Landings) == 0 {
			return false
		}
		for _, l := range p.Landings {
			if !filled(l.VesselName, l.DateLanded, l.ExportWeight) {
				return false
			}
		}
	}
	return true
}

func transportDetailsComplete(d *document.Document) bool {
	t := d.Transport
	if t == nil {
		return false
	}
	switch t.Vehicle {
	case document.VehicleDirectLanding:
		return true
	case document.VehicleTruck:
		return filled(t.Nationality, t.Registration, t.DeparturePlace)
	case document.VehiclePlane:
		return filled(t.FlightNumber, t.ContainerNumbers, t.DeparturePlace)
	case document.VehicleTrain:
		return filled(t.RailwayBillNumber, t.DeparturePlace)
	case document.VehicleContainerShip:
		return filled(t.VesselName, t.FlagState, t.ContainerNumbers, t.DeparturePlace)
	default:
		return false
	}
}

func catchesComplete(d *document.Document) bool {
	if len(d.Catches) == 0 {
		return false
	}
	for _, c := range d.Catches {
		if !filled(c.Species, c.CatchCertificateNumber, c.TotalWeightLanded, c.ExportWeightBeforeProcessing, c.ExportWeightAfterProcessing) {
			return false
		}
	}
	return true
}

func storageProductsComplete(d *document.Document) bool {
	if len(d.Products) == 0 {
		return false
	}
	for _, p := range d.Products {
		if !filled(p.Species, p.CommodityCode, p.CertificateNumber, p.ProductWeight) {
			return false
		}
	}
	return true
}

func facilitiesComplete(d *document.Document) bool {
	if len(d.StorageFacilities) == 0 {
		return false
	}
	for _, f := range d.StorageFacilities {
		if !filled(f.FacilityName, f.FacilityAddressOne, f.FacilityPostcode) {
			return false
		}
	}
	return true
}
