// Package document is the per-request view of an exporter document. The
// upstream certificate service owns the authoritative state.
package document

import "github.com/DEFRA/eutd-mmo-fes-external-frontend-sub005/pkg/validation"

const (
	StatusDraft    = "DRAFT"
	StatusComplete = "COMPLETE"
	StatusVoid     = "VOID"
	StatusPending  = "PENDING"
	StatusLocked   = "LOCKED"
)

const (
	LandingsDirect = "directLanding"
	LandingsManual = "manualEntry"
	LandingsUpload = "uploadEntry"
)

const (
	VehicleTruck         = "truck"
	VehiclePlane         = "plane"
	VehicleTrain         = "train"
	VehicleContainerShip = "containerVessel"
	VehicleDirectLanding = "directLanding"
)

type Document struct {
	DocumentNumber      string             `json:"documentNumber"`
	Status              string             `json:"status"`
	UserReference       string             `json:"userReference,omitempty"`
	CreatedAt           string             `json:"createdAt,omitempty"`
	PDFURL              string             `json:"pdfUrl,omitempty"`
	Exporter            *Exporter          `json:"exporter,omitempty"`
	Products            []Product          `json:"products,omitempty"`
	LandingsEntryOption string             `json:"landingsEntryOption,omitempty"`
	Conservation        *Conservation      `json:"conservation,omitempty"`
	Transport           *Transport         `json:"transport,omitempty"`
	Consignment         *Consignment       `json:"consignment,omitempty"`
	Catches             []Catch            `json:"catches,omitempty"`
	ProcessingPlant     *ProcessingPlant   `json:"processingPlant,omitempty"`
	HealthCertificate   *HealthCertificate `json:"healthCertificate,omitempty"`
	StorageFacilities   []StorageFacility  `json:"storageFacilities,omitempty"`
	ExportDestination   string             `json:"exportDestination,omitempty"`
	ValidationErrors    validation.Errors  `json:"validationErrors,omitempty"`
}

type Exporter struct {
	ExporterFullName    string `json:"exporterFullName,omitempty"`
	ExporterCompanyName string `json:"exporterCompanyName,omitempty"`
	AddressOne          string `json:"addressOne,omitempty"`
	TownCity            string `json:"townCity,omitempty"`
	Postcode            string `json:"postcode,omitempty"`
}

// Product is a species line on a catch certificate or a product line on a
// storage document.
type Product struct {
	ID                string    `json:"id"`
	Species           string    `json:"species,omitempty"`
	SpeciesCode       string    `json:"speciesCode,omitempty"`
	CommodityCode     string    `json:"commodityCode,omitempty"`
	State             string    `json:"state,omitempty"`
	Presentation      string    `json:"presentation,omitempty"`
	CertificateNumber string    `json:"certificateNumber,omitempty"`
	ProductWeight     string    `json:"productWeight,omitempty"`
	Landings          []Landing `json:"landings,omitempty"`
}

type Landing struct {
	ID           string `json:"id"`
	VesselName   string `json:"vesselName,omitempty"`
	PLN          string `json:"pln,omitempty"`
	DateLanded   string `json:"dateLanded,omitempty"`
	ExportWeight string `json:"exportWeight,omitempty"`
	FAOArea      string `json:"faoArea,omitempty"`
}

type Conservation struct {
	CaughtIn  string `json:"caughtIn,omitempty"`
	Reference string `json:"conservationReference,omitempty"`
}

type Transport struct {
	Vehicle           string `json:"vehicle,omitempty"`
	ExportedFrom      string `json:"exportedFrom,omitempty"`
	ExportedTo        string `json:"exportedTo,omitempty"`
	Nationality       string `json:"nationalityOfVehicle,omitempty"`
	Registration      string `json:"registrationNumber,omitempty"`
	FlightNumber      string `json:"flightNumber,omitempty"`
	ContainerNumbers  string `json:"containerNumbers,omitempty"`
	RailwayBillNumber string `json:"railwayBillNumber,omitempty"`
	VesselName        string `json:"vesselName,omitempty"`
	FlagState         string `json:"flagState,omitempty"`
	DeparturePlace    string `json:"departurePlace,omitempty"`
}

type Consignment struct {
	Description string `json:"description,omitempty"`
}

type Catch struct {
	ID                           string `json:"id"`
	Species                      string `json:"species,omitempty"`
	CatchCertificateNumber       string `json:"catchCertificateNumber,omitempty"`
	TotalWeightLanded            string `json:"totalWeightLanded,omitempty"`
	ExportWeightBeforeProcessing string `json:"exportWeightBeforeProcessing,omitempty"`
	ExportWeightAfterProcessing  string `json:"exportWeightAfterProcessing,omitempty"`
}

type ProcessingPlant struct {
	PlantName           string `json:"plantName,omitempty"`
	PlantApprovalNumber string `json:"plantApprovalNumber,omitempty"`
	PersonResponsible   string `json:"personResponsibleForConsignment,omitempty"`
	PlantAddressOne     string `json:"plantAddressOne,omitempty"`
	PlantTownCity       string `json:"plantTownCity,omitempty"`
	PlantPostcode       string `json:"plantPostcode,omitempty"`
}

type HealthCertificate struct {
	Number string `json:"healthCertificateNumber,omitempty"`
	Date   string `json:"healthCertificateDate,omitempty"`
}

type StorageFacility struct {
	ID                  string `json:"id"`
	FacilityName        string `json:"facilityName,omitempty"`
	FacilityAddressOne  string `json:"facilityAddressOne,omitempty"`
	FacilityTownCity    string `json:"facilityTownCity,omitempty"`
	FacilityPostcode    string `json:"facilityPostcode,omitempty"`
	FacilityArrivalDate string `json:"facilityArrivalDate,omitempty"`
}

func (d *Document) IsDraft() bool { return d != nil && d.Status == StatusDraft }

// HasLandings reports whether any product already carries a landing.
func (d *Document) HasLandings() bool {
	for _, p := range d.Products {
		if len(p.Landings) > 0 {
			return true
		}
	}
	return false
}

func (d *Document) FindLanding(id string) (Product, Landing, bool) {
	for _, p := range d.Products {
		for _, l := range p.Landings {
			if l.ID == id {
				return p, l, true
			}
		}
	}
	return Product{}, Landing{}, false
}
