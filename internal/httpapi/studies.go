package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/cognicore/studyindex/pkg/studyindex/search"
)

const dateLayout = "2006-01-02"

// StudyHandler serves GET /studies and GET /facets.
type StudyHandler struct {
	searcher *search.Searcher
	logger   *zap.Logger
}

func NewStudyHandler(searcher *search.Searcher) *StudyHandler {
	return &StudyHandler{searcher: searcher, logger: zap.NewNop()}
}

// RegisterRoutes registers the routes for this handler
func (h *StudyHandler) RegisterRoutes(router *mux.Router, logger *zap.Logger) {
	h.logger = logger
	router.HandleFunc("/studies", h.studies).Methods(http.MethodGet)
	router.HandleFunc("/facets", h.facets).Methods(http.MethodGet)
}

type studyJSON struct {
	StudyID     string  `json:"study_id"`
	StudyNumber *int    `json:"study_number,omitempty"`
	StudyDate   string  `json:"study_date,omitempty"`
	Client      *string `json:"client,omitempty"`
	Species     *string `json:"species,omitempty"`
	Sex         *string `json:"sex,omitempty"`
	Description *string `json:"description,omitempty"`
	ProposalID  *string `json:"proposal_id,omitempty"`
	ReportID    *string `json:"report_id,omitempty"`
	Proposal    string  `json:"proposal,omitempty"`
	Report      string  `json:"report,omitempty"`
}

type studiesResponse struct {
	Count   int         `json:"count"`
	Studies []studyJSON `json:"studies"`
}

// criteria reads the query string; method and compound may repeat.
func criteria(r *http.Request) (search.Criteria, error) {
	q := r.URL.Query()
	c := search.Criteria{
		Methods:   q["method"],
		Compounds: q["compound"],
		Client:    q.Get("client"),
		Sex:       q.Get("sex"),
		Species:   q.Get("species"),
		Strain:    q.Get("strain"),
	}
	for name, dst := range map[string]*int{"from": &c.FromYear, "to": &c.ToYear} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		y, err := strconv.Atoi(v)
		if err != nil {
			return c, err
		}
		*dst = y
	}
	return c, nil
}

func (h *StudyHandler) studies(w http.ResponseWriter, r *http.Request) {
	c, err := criteria(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "from and to must be years")
		return
	}
	matches, err := h.searcher.Search(r.Context(), c)
	if err != nil {
		h.logger.Error("search failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	resp := studiesResponse{Count: len(matches), Studies: make([]studyJSON, 0, len(matches))}
	for _, m := range matches {
		s := m.Study
		js := studyJSON{
			StudyID:     s.StudyID,
			StudyNumber: s.StudyNumber,
			Client:      s.Client,
			Species:     s.Species,
			Sex:         s.Sex,
			Description: s.Description,
			ProposalID:  s.ProposalID,
			ReportID:    s.ReportID,
			Proposal:    m.Proposal,
			Report:      m.Report,
		}
		if s.StudyDate != nil {
			js.StudyDate = s.StudyDate.Format(dateLayout)
		}
		resp.Studies = append(resp.Studies, js)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *StudyHandler) facets(w http.ResponseWriter, r *http.Request) {
	f, err := h.searcher.Facets(r.Context())
	if err != nil {
		h.logger.Error("facets failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "facets failed")
		return
	}
	writeJSON(w, http.StatusOK, f)
}
