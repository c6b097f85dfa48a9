// Package journey names the three document wizards and builds their URLs.
package journey

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

type Journey string

const (
	CatchCertificate    Journey = "catchCertificate"
	ProcessingStatement Journey = "processingStatement"
	StorageNotes        Journey = "storageNotes"
)

const ForbiddenURL = "/forbidden"

var (
	ErrUnknownDocumentType = errors.New("journey: unknown document type")
	ErrUnknownJourney      = errors.New("journey: unknown journey")
)

var All = []Journey{CatchCertificate, ProcessingStatement, StorageNotes}

type info struct {
	marker    string
	base      string
	dashboard string
	noun      string
	steps     []string
}

var journeys = map[Journey]info{
	CatchCertificate: {
		marker:    "CC",
		base:      "/create-catch-certificate",
		dashboard: "catch-certificates",
		noun:      "catch-certificate",
		steps: []string{
			"add-your-reference",
			"add-exporter-details",
			"what-are-you-exporting",
			"landings-entry",
			"add-landings",
			"whose-waters-were-they-caught-in",
			"how-does-the-export-leave-the-uk",
			"add-transportation-details",
		},
	},
	ProcessingStatement: {
		marker:    "PS",
		base:      "/create-processing-statement",
		dashboard: "processing-statements",
		noun:      "processing-statement",
		steps: []string{
			"add-your-reference",
			"add-exporter-details",
			"add-consignment-details",
			"add-catch-details",
			"add-processing-plant-details",
			"add-processing-plant-address",
			"add-health-certificate",
			"what-export-destination",
		},
	},
	StorageNotes: {
		marker:    "SD",
		base:      "/create-storage-document",
		dashboard: "storage-documents",
		noun:      "storage-document",
		steps: []string{
			"add-your-reference",
			"add-exporter-details",
			"add-product-to-this-consignment",
			"add-storage-facility-details",
			"how-does-the-export-leave-the-uk",
			"add-transportation-details",
			"what-export-destination",
		},
	},
}

func Parse(s string) (Journey, error) {
	j := Journey(strings.TrimSpace(s))
	if _, ok := journeys[j]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownJourney, s)
	}
	return j, nil
}

// FromDocumentNumber reads the CC/PS/SD marker embedded in a document number
// such as GBR-2024-CC-0123ABCDE.
func FromDocumentNumber(documentNumber string) (Journey, error) {
	upper := strings.ToUpper(documentNumber)
	for _, part := range strings.Split(upper, "-") {
		for _, j := range All {
			if part == journeys[j].marker {
				return j, nil
			}
		}
	}
	for _, j := range All {
		if strings.Contains(upper, journeys[j].marker) {
			return j, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDocumentType, documentNumber)
}

func (j Journey) BasePath() string { return journeys[j].base }

// Noun is the hyphenated document name used in slugs ("catch-certificate").
func (j Journey) Noun() string { return journeys[j].noun }

func (j Journey) Steps() []string {
	return append([]string(nil), journeys[j].steps...)
}

func (j Journey) HasStep(slug string) bool {
	return indexOf(journeys[j].steps, slug) >= 0
}

func DashboardURL(j Journey) string {
	return journeys[j].base + "/" + journeys[j].dashboard
}

func StepURL(j Journey, documentNumber, slug string) string {
	return journeys[j].base + "/" + url.PathEscape(documentNumber) + "/" + slug
}

func ProgressURL(j Journey, documentNumber string) string {
	return StepURL(j, documentNumber, "progress")
}

func CheckYourInformationURL(j Journey, documentNumber string) string {
	return StepURL(j, documentNumber, "check-your-information")
}

func CreatedURL(j Journey, documentNumber string) string {
	return StepURL(j, documentNumber, j.Noun()+"-created")
}

func CopyURL(j Journey, documentNumber string) string {
	return StepURL(j, documentNumber, "copy-this-"+j.Noun())
}

// Next is the page after slug: the following step, or progress after the last.
func Next(j Journey, documentNumber, slug string) string {
	steps := journeys[j].steps
	i := indexOf(steps, slug)
	if i < 0 || i == len(steps)-1 {
		return ProgressURL(j, documentNumber)
	}
	return StepURL(j, documentNumber, steps[i+1])
}

// Back is the page before slug: the previous step, or progress from the first.
func Back(j Journey, documentNumber, slug string) string {
	steps := journeys[j].steps
	i := indexOf(steps, slug)
	if i <= 0 {
		return ProgressURL(j, documentNumber)
	}
	return StepURL(j, documentNumber, steps[i-1])
}

func indexOf(xs []string, v string) int {
	for i, x := range xs {
		if x == v {
			return i
		}
	}
	return -1
}
