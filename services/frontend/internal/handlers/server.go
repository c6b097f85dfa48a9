// Package handlers serves the exporter wizard: one loader (GET) and one
// action (POST) per page. Loaders answer with a JSON view model.
package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DEFRA/eutd-mmo-fes-external-frontend-sub005/pkg/authn"
	"github.com/DEFRA/eutd-mmo-fes-external-frontend-sub005/pkg/document"
	"github.com/DEFRA/eutd-mmo-fes-external-frontend-sub005/pkg/httpx"
	"github.com/DEFRA/eutd-mmo-fes-external-frontend-sub005/pkg/journey"
	"github.com/DEFRA/eutd-mmo-fes-external-frontend-sub005/pkg/ratelimit"
	"github.com/DEFRA/eutd-mmo-fes-external-frontend-sub005/pkg/session"
	"github.com/DEFRA/eutd-mmo-fes-external-frontend-sub005/services/frontend/internal/upstream"
)

// Documents is the orchestration service as the handlers use it.
type Documents interface {
	ListDocuments(ctx context.Context, j journey.Journey) ([]upstream.DocumentSummary, error)
	CreateDraft(ctx context.Context, j journey.Journey) (string, error)
	GetDocument(ctx context.Context, documentNumber string) (*document.Document, error)
	SaveSection(ctx context.Context, documentNumber, section string, payload any, draft bool) error
	AddItem(ctx context.Context, documentNumber, section string, payload any, draft bool) (string, error)
	UpdateItem(ctx context.Context, documentNumber, section, id string, payload any, draft bool) error
	RemoveItem(ctx context.Context, documentNumber, section, id string) error
	DeleteDraft(ctx context.Context, documentNumber string) error
	VoidDocument(ctx context.Context, documentNumber string) error
	CopyDocument(ctx context.Context, documentNumber string, voidOriginal bool) (string, error)
	Submit(ctx context.Context, documentNumber string) (*upstream.SubmitResult, error)
	SearchSpecies(ctx context.Context, query string) ([]upstream.Species, error)
	SearchVessels(ctx context.Context, query, landedOn string) ([]upstream.Vessel, error)
	ListCountries(ctx context.Context) ([]upstream.Country, error)
	GetUserAttributes(ctx context.Context) (map[string]string, error)
	SaveUserAttribute(ctx context.Context, key, value string) error
}

type Reference interface {
	LookupAddresses(ctx context.Context, postcode string) ([]upstream.Address, error)
	CommodityCodes(ctx context.Context, speciesCode string) ([]upstream.CommodityCode, error)
}

type Features struct {
	UploadLandings bool
	CopyVoid       bool
}

type Deps struct {
	Documents      Documents
	Reference      Reference
	Sessions       session.Store
	Logger         *zap.Logger
	Events         authn.Recorder
	AddressLimiter *ratelimit.FixedWindow
	SignedOutURL   string
	Features       Features
}

type Server struct {
	docs     Documents
	ref      Reference
	sessions session.Store
	log      *zap.Logger
	events   authn.Recorder
	limiter  *ratelimit.FixedWindow
	signOut  string
	features Features
}

func New(d Deps) *Server {
	s := &Server{
		docs:     d.Documents,
		ref:      d.Reference,
		sessions: d.Sessions,
		log:      d.Logger,
		events:   d.Events,
		limiter:  d.AddressLimiter,
		signOut:  d.SignedOutURL,
		features: d.Features,
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.events == nil {
		s.events = authn.LogRecorder{Logger: s.log}
	}
	if s.signOut == "" {
		s.signOut = "/"
	}
	return s
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(httpx.RequestLogger(s.log))
	r.Use(httpx.SecurityHeaders)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get(journey.ForbiddenURL, s.forbidden)
	r.Get("/logout", s.logout)
	r.Get("/privacy-notice", s.page(s.privacyLoader))
	r.Post("/privacy-notice", s.page(s.privacyAction))

	r.Route("/api", func(api chi.Router) {
		api.Get("/species", s.page(s.speciesAPI))
		api.Get("/vessels", s.page(s.vesselsAPI))
		api.Get("/countries", s.page(s.countriesAPI))
		api.Get("/addresses", s.page(s.addressesAPI))
		api.Get("/commodity-codes", s.page(s.commodityCodesAPI))
	})

	for _, j := range journey.All {
		s.mountJourney(r, j)
	}
	return r
}

func (s *Server) mountJourney(r chi.Router, j journey.Journey) {
	noun := j.Noun()
	r.Route(j.BasePath(), func(jr chi.Router) {
		dashboard := journey.DashboardURL(j)[len(j.BasePath()):]
		jr.Get(dashboard, s.journeyPage(j, s.dashboardLoader))
		jr.Post(dashboard, s.journeyPage(j, s.dashboardAction))

		jr.Route("/{documentNumber}", func(dr chi.Router) {
			dr.Get("/progress", s.documentPage(j, s.progressLoader))
			dr.Post("/progress", s.documentPage(j, s.progressAction))

			for _, slug := range j.Steps() {
				switch slug {
				case "landings-entry":
					dr.Get("/landings-entry", s.documentPage(j, s.landingsEntryLoader))
					dr.Post("/landings-entry", s.documentPage(j, s.landingsEntryAction))
				case "add-landings":
					dr.Get("/add-landings", s.documentPage(j, s.addLandingsLoader))
					dr.Post("/add-landings", s.documentPage(j, s.addLandingsAction))
				default:
					step, ok := formSteps[slug]
					if !ok {
						continue
					}
					dr.Get("/"+slug, s.documentPage(j, s.stepLoader(step)))
					dr.Post("/"+slug, s.documentPage(j, s.stepAction(step)))
				}
			}
			if j.HasStep("landings-entry") {
				dr.Get("/landings-type-confirmation", s.documentPage(j, s.landingsConfirmLoader))
				dr.Post("/landings-type-confirmation", s.documentPage(j, s.landingsConfirmAction))
			}

			dr.Get("/copy-this-"+noun, s.documentPage(j, s.copyLoader))
			dr.Post("/copy-this-"+noun, s.documentPage(j, s.copyAction))
			dr.Get("/copy-void-confirmation", s.documentPage(j, s.copyVoidLoader))
			dr.Post("/copy-void-confirmation", s.documentPage(j, s.copyVoidAction))
			dr.Get("/delete-this-draft-"+noun, s.documentPage(j, s.deleteDraftLoader))
			dr.Post("/delete-this-draft-"+noun, s.documentPage(j, s.deleteDraftAction))
			dr.Get("/void-this-"+noun, s.documentPage(j, s.voidLoader))
			dr.Post("/void-this-"+noun, s.documentPage(j, s.voidAction))
			dr.Get("/check-your-information", s.documentPage(j, s.checkYourInformationLoader))
			dr.Post("/check-your-information", s.documentPage(j, s.checkYourInformationAction))
			dr.Get("/"+noun+"-created", s.documentPage(j, s.createdLoader))
		})
	})
}

func (s *Server) forbidden(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusForbidden, View{Page: "forbidden"})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(r.Context(), r)
	if err != nil {
		s.log.Error("load session", zap.String("request_id", httpx.RequestID(r)), zap.Error(err))
		httpx.Redirect(w, r, s.signOut)
		return
	}
	cookie, err := s.sessions.Destroy(r.Context(), sess)
	if err != nil {
		s.log.Error("destroy session", zap.String("request_id", httpx.RequestID(r)), zap.Error(err))
	}
	httpx.Redirect(w, r, s.signOut, cookie)
}
