package twin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/relabs-tech/twinrelay/core/logger"
	"github.com/relabs-tech/twinrelay/core/schema"
	"github.com/relabs-tech/twinrelay/iot"
	"github.com/relabs-tech/twinrelay/iot/patch"
)

// Store is the part of the Graph used by the API
type Store interface {
	Get(ctx context.Context, id string) (Twin, error)
	List(ctx context.Context, page Page) ([]Twin, error)
	Put(ctx context.Context, t Twin) (Twin, error)
	Apply(ctx context.Context, id string, doc patch.Document) (Twin, error)
}

var _ Store = (*Graph)(nil)

// Page limits of GET /twins
const (
	DefaultPageLimit = 100
	MaxPageLimit     = 1000
)

// API is the REST interface of the twin graph
type API struct {
	store     Store
	validator *schema.Validator
	publisher iot.MessagePublisher
}

// APIBuilder is a builder helper for the API
type APIBuilder struct {
	// Store holds the twins. This is mandatory.
	Store Store
	// Router is the mux router the routes are added to. This is mandatory.
	Router *mux.Router
	// Validator validates patch documents. Defaults to schema.Builtin().
	Validator *schema.Validator
	// Publisher forwards applied patches to the device on its patch topic. Optional.
	Publisher iot.MessagePublisher
}

// NewAPI adds the twin routes to the router and returns the API
func NewAPI(b *APIBuilder) *API {
	if b.Store == nil {
		panic("Store is missing")
	}
	if b.Router == nil {
		panic("Router is missing")
	}
	a := &API{
		store:     b.Store,
		validator: b.Validator,
		publisher: b.Publisher,
	}
	if a.validator == nil {
		a.validator = schema.Builtin()
	}
	a.handleRoutes(b.Router)
	return a
}

type putRequest struct {
	ModelID    string          `json:"modelId"`
	Properties json.RawMessage `json:"properties"`
}

func (a *API) handleRoutes(router *mux.Router) {
	log := logger.Default()
	log.Debugln("twin: handle route /twins?limit&cursor GET")
	log.Debugln("twin: handle route /twins/{twin_id} GET,PUT,PATCH")
	log.Debugln("twin: handle route /twins/{twin_id}/properties/{pointer} GET")

	router.Handle("/twins", handlers.CompressHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := Page{Limit: DefaultPageLimit}
		for key, values := range r.URL.Query() {
			switch key {
			case "limit":
				limit, err := strconv.Atoi(values[0])
				if err != nil || limit < 1 || limit > MaxPageLimit {
					http.Error(w, fmt.Sprintf("limit must be between 1 and %d", MaxPageLimit), http.StatusBadRequest)
					return
				}
				page.Limit = limit
			case "cursor":
				cursor, err := DecodeCursor(values[0])
				if err != nil {
					http.Error(w, err.Error(), http.StatusBadRequest)
					return
				}
				page.After = cursor.ID
			default:
				http.Error(w, "unknown query parameter "+key, http.StatusBadRequest)
				return
			}
		}
		twins, err := a.store.List(r.Context(), page)
		if err != nil {
			logger.FromContext(r.Context()).WithError(err).Errorln("Error 4720: list twins")
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Pagination-Limit", strconv.Itoa(page.Limit))
		if len(twins) == page.Limit {
			w.Header().Set("Pagination-Next-Cursor", Cursor{ID: twins[len(twins)-1].ID}.Encode())
		}
		writeJSON(w, http.StatusOK, twins)
	}))).Methods(http.MethodGet)

	router.HandleFunc("/twins/{twin_id}", func(w http.ResponseWriter, r *http.Request) {
		t, err := a.store.Get(r.Context(), mux.Vars(r)["twin_id"])
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}).Methods(http.MethodGet)

	router.HandleFunc("/twins/{twin_id}/properties/{pointer:.+}", func(w http.ResponseWriter, r *http.Request) {
		params := mux.Vars(r)
		t, err := a.store.Get(r.Context(), params["twin_id"])
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		property, err := Property(t.Properties, "/"+params["pointer"])
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(property)
	}).Methods(http.MethodGet)

	router.HandleFunc("/twins/{twin_id}", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		req := putRequest{}
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, "invalid json data", http.StatusBadRequest)
			return
		}
		t, err := a.store.Put(r.Context(), Twin{
			ID:         mux.Vars(r)["twin_id"],
			ModelID:    req.ModelID,
			Properties: req.Properties,
		})
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}).Methods(http.MethodPut)

	router.HandleFunc("/twins/{twin_id}", func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["twin_id"]
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := a.validator.ValidateBytes(body, schema.PatchDocumentID); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		doc := patch.Document{}
		if err := json.Unmarshal(body, &doc); err != nil {
			http.Error(w, "invalid json data", http.StatusBadRequest)
			return
		}
		t, err := a.store.Apply(r.Context(), id, doc)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		if a.publisher != nil {
			a.publisher.PublishMessageQ1(iot.PatchTopic(id), body)
		}
		writeJSON(w, http.StatusOK, t)
	}).Methods(http.MethodPatch)
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrPatchConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, patch.ErrMalformedInput), errors.Is(err, ErrUnsupportedOperation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		logger.FromContext(r.Context()).WithError(err).Errorln("Error 4721: twin request")
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	encoder.Encode(v)
}
