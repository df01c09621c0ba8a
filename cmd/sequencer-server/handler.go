package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/Bren2010/signup-sequencer/crypto/suites"
	"github.com/Bren2010/signup-sequencer/ledger"
	"github.com/Bren2010/signup-sequencer/sequencer"
	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/mux"
)

// Backend is the subset of *sequencer.Sequencer used by the API.
type Backend interface {
	Insert(ctx context.Context, commitment suites.Hash) (uint64, error)
	Prove(t sequencer.Target) (*sequencer.InclusionProof, error)
	Status() sequencer.Status
	Reconcile(ctx context.Context) (*sequencer.Report, error)
}

var _ Backend = (*sequencer.Sequencer)(nil)

type Handler struct {
	config  *APIConfig
	backend Backend

	// confirmWait is how long an insertion request waits for the ledger
	// before answering that confirmation is pending.
	confirmWait time.Duration
}

// NewRouter returns the routes of the API server.
func NewRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", h.Home).Methods(http.MethodGet)
	r.HandleFunc("/insertIdentity", HandleAPI(h.InsertIdentity)).Methods(http.MethodPost)
	r.HandleFunc("/inclusionProof", HandleAPI(h.InclusionProof)).Methods(http.MethodPost, http.MethodGet)
	r.HandleFunc("/status", HandleAPI(h.Status)).Methods(http.MethodGet)
	r.HandleFunc("/reconcile", HandleAPI(h.Reconcile)).Methods(http.MethodPost)
	r.NotFoundHandler = HandleAPI(func(req *http.Request) (int, any, error) {
		return 0, nil, &httpError{http.StatusNotFound, "not found"}
	})
	return r
}

// Home redirects requests to a pre-configured URL, like the API documentation.
func (h *Handler) Home(rw http.ResponseWriter, req *http.Request) {
	http.Redirect(rw, req, h.config.HomeRedirect, http.StatusSeeOther)
}

// httpError is an error produced by the API layer itself, before the request
// reaches the sequencer.
type httpError struct {
	code int
	msg  string
}

func (e *httpError) Error() string { return e.msg }

type ErrorResponse struct {
	Error string `json:"error"`
}

// apiFunc handles a request and returns a status code and response body, or
// an error.
type apiFunc func(req *http.Request) (int, any, error)

// HandleAPI adapts fn into an http.HandlerFunc that writes JSON responses,
// translates errors into status codes, and records request metrics.
func HandleAPI(fn apiFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, req *http.Request) {
		start := time.Now()
		requestCtr.Inc()

		status, body, err := fn(req)
		if err != nil {
			status = errorStatus(err)
			body = ErrorResponse{Error: err.Error()}
			if status >= 500 {
				log.Warn("Request failed", "path", req.URL.Path, "status", status, "err", err)
			}
		}

		rw.Header().Set("Content-Type", "application/json")
		rw.WriteHeader(status)
		if err := json.NewEncoder(rw).Encode(body); err != nil {
			log.Debug("Failed to write response", "err", err)
		}

		responseCtr.WithLabelValues(strconv.Itoa(status)).Inc()
		latencyHist.Observe(time.Since(start).Seconds())
	}
}

func errorStatus(err error) int {
	var herr *httpError
	var lerr *ledger.Error
	switch {
	case errors.As(err, &herr):
		return herr.code
	case errors.Is(err, sequencer.ErrIndexOutOfBounds), errors.Is(err, sequencer.ErrInvalidValue):
		return http.StatusBadRequest
	case errors.Is(err, sequencer.ErrDuplicateCommitment):
		return http.StatusConflict
	case errors.Is(err, sequencer.ErrCommitmentNotFound):
		return http.StatusNotFound
	case errors.Is(err, sequencer.ErrLedgerDivergence):
		return http.StatusServiceUnavailable
	case errors.As(err, &lerr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON parses the request body into v. The request must be declared as
// JSON and the body must not contain unknown fields.
func decodeJSON(req *http.Request, v any) error {
	mt, _, err := mime.ParseMediaType(req.Header.Get("Content-Type"))
	if err != nil || mt != "application/json" {
		return &httpError{http.StatusUnsupportedMediaType, "content type must be application/json"}
	}
	dec := json.NewDecoder(req.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &httpError{http.StatusBadRequest, fmt.Sprintf("failed to parse request: %v", err)}
	}
	return nil
}

type InsertIdentityRequest struct {
	IdentityCommitment *suites.Hash `json:"identityCommitment"`
}

type InsertIdentityResponse struct {
	IdentityIndex uint64 `json:"identityIndex"`
	// Error is set if the insertion was assigned an index but the ledger
	// did not accept it.
	Error string `json:"error,omitempty"`
}

func (h *Handler) InsertIdentity(req *http.Request) (int, any, error) {
	var parsed InsertIdentityRequest
	if err := decodeJSON(req, &parsed); err != nil {
		return 0, nil, err
	} else if parsed.IdentityCommitment == nil {
		return 0, nil, &httpError{http.StatusBadRequest, "field not provided: identityCommitment"}
	}

	ctx := req.Context()
	if h.confirmWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.confirmWait)
		defer cancel()
	}
	index, err := h.backend.Insert(ctx, *parsed.IdentityCommitment)
	if errors.Is(err, sequencer.ErrConfirmationPending) {
		return http.StatusAccepted, InsertIdentityResponse{IdentityIndex: index}, nil
	} else if errors.Is(err, sequencer.ErrLedgerDivergence) && !errors.Is(err, sequencer.ErrInsertionsSuspended) {
		log.Warn("Insertion was not accepted by the ledger", "index", index, "err", err)
		return http.StatusServiceUnavailable, InsertIdentityResponse{IdentityIndex: index, Error: err.Error()}, nil
	} else if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, InsertIdentityResponse{IdentityIndex: index}, nil
}

// InclusionProofRequest selects a leaf by exactly one of its index or its
// commitment.
type InclusionProofRequest struct {
	IdentityIndex      *uint64      `json:"identityIndex"`
	IdentityCommitment *suites.Hash `json:"identityCommitment"`
}

func (h *Handler) InclusionProof(req *http.Request) (int, any, error) {
	var parsed InclusionProofRequest
	if err := decodeJSON(req, &parsed); err != nil {
		return 0, nil, err
	}

	var target sequencer.Target
	switch {
	case parsed.IdentityIndex != nil && parsed.IdentityCommitment != nil:
		return 0, nil, &httpError{http.StatusBadRequest, "only one of identityIndex and identityCommitment may be provided"}
	case parsed.IdentityIndex != nil:
		target = sequencer.ByIndex(*parsed.IdentityIndex)
	case parsed.IdentityCommitment != nil:
		target = sequencer.ByCommitment(*parsed.IdentityCommitment)
	default:
		return 0, nil, &httpError{http.StatusBadRequest, "field not provided: identityIndex or identityCommitment"}
	}

	proof, err := h.backend.Prove(target)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, proof, nil
}

func (h *Handler) Status(req *http.Request) (int, any, error) {
	return http.StatusOK, h.backend.Status(), nil
}

func (h *Handler) Reconcile(req *http.Request) (int, any, error) {
	rep, err := h.backend.Reconcile(req.Context())
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, rep, nil
}
