// Package web exposes a repo over a REST/JSON API
package web

import (
	"io"
	"net/http"
	"strings"

	"github.com/felixge/httpsnoop"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"
	"github.com/oneconcern/revstore/pkg/core"
	"github.com/oneconcern/revstore/pkg/core/status"
	"github.com/oneconcern/revstore/pkg/errors"
	"github.com/oneconcern/revstore/pkg/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cast"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxBodySize bounds the size of request bodies
const maxBodySize = 32 << 20

const metricsPath = "/metrics"

// ErrRateLimited is returned when requests exceed the rate limit of the server
var ErrRateLimited = status.ErrTransient.Extend("too many requests")

// ServerOption configures a Server
type ServerOption func(*Server)

// Logger for the requests served
func Logger(l *zap.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.l = l
		}
	}
}

// Gatherer exposes metrics on /metrics
func Gatherer(g prometheus.Gatherer) ServerOption {
	return func(s *Server) {
		s.gatherer = g
	}
}

// RateLimit caps the rate of API requests, in requests per second with bursts. A zero rate means no limit.
func RateLimit(perSecond float64, burst int) ServerOption {
	return func(s *Server) {
		if perSecond <= 0 {
			s.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// Server handles REST requests on a repo
type Server struct {
	repo     *core.Repo
	l        *zap.Logger
	gatherer prometheus.Gatherer
	limiter  *rate.Limiter
}

// NewServer builds the handlers for a repo
func NewServer(repo *core.Repo, opts ...ServerOption) *Server {
	s := &Server{repo: repo, l: zap.NewNop()}
	for _, apply := range opts {
		apply(s)
	}
	return s
}

type errorBody struct {
	Error string `json:"error"`
}

type createBranchBody struct {
	Metadata map[string]string `json:"metadata,omitempty"`
}

type metadataBody struct {
	Metadata map[string]string `json:"metadata"`
}

type commitBody struct {
	Author  string         `json:"author,omitempty"`
	Comment string         `json:"comment,omitempty"`
	Changes []model.Change `json:"changes"`
}

type mergeBody struct {
	Source        string `json:"source"`
	Target        string `json:"target"`
	CommitComment string `json:"commitComment,omitempty"`
	Rebase        *bool  `json:"rebase,omitempty"`
}

// rebase tells if the request brings a parent into its child, unless set explicitly
func (b mergeBody) rebase(src, tgt model.Branch) bool {
	if b.Rebase != nil {
		return *b.Rebase
	}
	return !tgt.IsRoot() && tgt.ParentID == src.ID
}

type conflictsBody struct {
	Status    model.MergeStatus    `json:"status"`
	Conflicts model.MergeConflicts `json:"conflicts"`
}

type reviewBody struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// code maps an error kind to an HTTP status
func code(err error) int {
	switch {
	case errors.Is(err, status.ErrDuplicateName):
		return http.StatusConflict
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, status.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, status.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, status.ErrTransient):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	c := code(err)
	if c == http.StatusInternalServerError {
		s.l.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	} else {
		s.l.Debug("request rejected", zap.String("path", r.URL.Path), zap.Int("status", c), zap.Error(err))
	}
	s.reply(w, c, errorBody{Error: err.Error()})
}

func (s *Server) reply(w http.ResponseWriter, code int, body interface{}) {
	if body == nil {
		w.WriteHeader(code)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.l.Warn("could not write response", zap.Error(err))
	}
}

// decode a JSON body. An empty body leaves v untouched.
func decode(r *http.Request, v interface{}) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(v)
	if err == nil || err == io.EOF {
		return nil
	}
	return status.ErrInvalidRequest.Wrap(err)
}

// path of the branch captured by a wildcard route
func branchPath(r *http.Request) string {
	return strings.Trim(chi.URLParam(r, "*"), "/")
}

func timestamp(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return model.UnspecifiedTime, nil
	}
	ts, err := cast.ToInt64E(raw)
	if err != nil {
		return 0, status.ErrInvalidRequest.WrapMessage("%s: %v", name, err)
	}
	return ts, nil
}

/* branches */

// HandleListBranches lists all the branches, deleted ones included
func (s *Server) HandleListBranches() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		branches, err := s.repo.Branches().List()
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.reply(w, http.StatusOK, branches)
	}
}

// HandleGetBranch returns a branch by path
func (s *Server) HandleGetBranch() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := s.repo.Branches().Get(branchPath(r))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.reply(w, http.StatusOK, b)
	}
}

// HandleCreateBranch creates a branch: the last element of the path is the name of the new branch
func (s *Server) HandleCreateBranch() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := branchPath(r)
		i := strings.LastIndex(path, model.PathSeparator)
		if i < 0 {
			s.fail(w, r, status.ErrInvalidBranchName.WrapMessage("%q has no parent", path))
			return
		}
		var body createBranchBody
		if err := decode(r, &body); err != nil {
			s.fail(w, r, err)
			return
		}
		b, err := s.repo.Branches().Create(r.Context(), path[:i], path[i+1:], body.Metadata)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.reply(w, http.StatusCreated, b)
	}
}

// HandleDeleteBranch deletes a branch and all its descendants
func (s *Server) HandleDeleteBranch() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.repo.Branches().Delete(r.Context(), branchPath(r)); err != nil {
			s.fail(w, r, err)
			return
		}
		s.reply(w, http.StatusNoContent, nil)
	}
}

// HandleUpdateMetadata replaces the metadata of a branch, on PUT /branches/{path}/metadata
func (s *Server) HandleUpdateMetadata() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := branchPath(r)
		if !strings.HasSuffix(path, "/metadata") {
			s.reply(w, http.StatusMethodNotAllowed, nil)
			return
		}
		var body metadataBody
		if err := decode(r, &body); err != nil {
			s.fail(w, r, err)
			return
		}
		b, err := s.repo.Branches().UpdateMetadata(r.Context(), strings.TrimSuffix(path, "/metadata"), body.Metadata)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.reply(w, http.StatusOK, b)
	}
}

/* commits and components */

// HandleCommit applies a change set on a branch
func (s *Server) HandleCommit() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body commitBody
		if err := decode(r, &body); err != nil {
			s.fail(w, r, err)
			return
		}
		c, err := s.repo.Commit(r.Context(), branchPath(r), body.Author, body.Comment, body.Changes)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.reply(w, http.StatusCreated, c)
	}
}

// HandleListCommits lists the commits of a branch, optionally after ?since=
func (s *Server) HandleListCommits() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		since, err := timestamp(r, "since")
		if err != nil {
			s.fail(w, r, err)
			return
		}
		commits, err := s.repo.History(branchPath(r), since)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if commits == nil {
			commits = model.Commits{}
		}
		s.reply(w, http.StatusOK, commits)
	}
}

// HandleGetComponent returns the revision of a component visible on ?branch= (MAIN by default) at ?timestamp=
func (s *Server) HandleGetComponent() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Query().Get("branch")
		if path == "" {
			path = model.MainPath
		}
		ts, err := timestamp(r, "timestamp")
		if err != nil {
			s.fail(w, r, err)
			return
		}
		rev, err := s.repo.Component(chi.URLParam(r, "id"), path, ts)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.reply(w, http.StatusOK, rev)
	}
}

/* merges */

// HandleMerge merges the source into the target. When the source is the parent of the target,
// the target is rebased instead.
func (s *Server) HandleMerge() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body mergeBody
		if err := decode(r, &body); err != nil {
			s.fail(w, r, err)
			return
		}
		if body.Source == "" || body.Target == "" {
			s.fail(w, r, status.ErrInvalidRequest.WrapMessage("source and target are required"))
			return
		}
		src, err := s.repo.Branches().Get(body.Source)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		tgt, err := s.repo.Branches().Get(body.Target)
		if err != nil {
			s.fail(w, r, err)
			return
		}

		var m model.Merge
		if body.rebase(src, tgt) {
			m, err = s.repo.Rebase(r.Context(), body.Target, body.Source, body.CommitComment)
		} else {
			m, err = s.repo.Merge(r.Context(), body.Source, body.Target, body.CommitComment)
		}
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if m.HasConflicts() {
			s.reply(w, http.StatusConflict, conflictsBody{Status: m.Status, Conflicts: m.Conflicts})
			return
		}
		s.reply(w, http.StatusNoContent, nil)
	}
}

/* reviews */

// HandleCreateReview starts computing a review
func (s *Server) HandleCreateReview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body reviewBody
		if err := decode(r, &body); err != nil {
			s.fail(w, r, err)
			return
		}
		rv, err := s.repo.Reviews().Create(r.Context(), body.Source, body.Target)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.reply(w, http.StatusCreated, rv)
	}
}

// HandleListReviews lists all known reviews
func (s *Server) HandleListReviews() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reviews, err := s.repo.Reviews().List()
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if reviews == nil {
			reviews = model.Reviews{}
		}
		s.reply(w, http.StatusOK, reviews)
	}
}

// HandleGetReview returns the current status of a review
func (s *Server) HandleGetReview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rv, err := s.repo.Reviews().Get(chi.URLParam(r, "id"))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.reply(w, http.StatusOK, rv)
	}
}

// HandleReviewChanges returns the component changes of a computed review
func (s *Server) HandleReviewChanges() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		changes, err := s.repo.Reviews().Changes(chi.URLParam(r, "id"))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.reply(w, http.StatusOK, changes)
	}
}

// HandleConceptChanges returns the changes of a computed review, rolled up to concepts
func (s *Server) HandleConceptChanges() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		changes, err := s.repo.Reviews().ConceptChanges(chi.URLParam(r, "id"))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.reply(w, http.StatusOK, changes)
	}
}

// HandleDeleteReview deletes a review and its changes
func (s *Server) HandleDeleteReview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.repo.Reviews().Delete(chi.URLParam(r, "id")); err != nil {
			s.fail(w, r, err)
			return
		}
		s.reply(w, http.StatusNoContent, nil)
	}
}

// requestLogger logs every request at the debug level
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		s.l.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", m.Code),
			zap.Int64("bytes", m.Written),
			zap.Duration("elapsed", m.Duration),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// rateLimiter rejects API requests beyond the configured rate. Metrics are never limited.
func (s *Server) rateLimiter(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && r.URL.Path != metricsPath && !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			s.fail(w, r, ErrRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// InitRouter mounts the handlers of a server
func InitRouter(srv *Server) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(srv.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(srv.rateLimiter)

	r.Route("/branches", func(r chi.Router) {
		r.Get("/", srv.HandleListBranches())
		r.Get("/*", srv.HandleGetBranch())
		r.Post("/*", srv.HandleCreateBranch())
		r.Delete("/*", srv.HandleDeleteBranch())
		r.Put("/*", srv.HandleUpdateMetadata())
	})

	r.Route("/commits", func(r chi.Router) {
		r.Get("/*", srv.HandleListCommits())
		r.Post("/*", srv.HandleCommit())
	})

	r.Get("/components/{id}", srv.HandleGetComponent())

	r.Post("/merges", srv.HandleMerge())

	r.Route("/reviews", func(r chi.Router) {
		r.Get("/", srv.HandleListReviews())
		r.Post("/", srv.HandleCreateReview())
		r.Get("/{id}", srv.HandleGetReview())
		r.Delete("/{id}", srv.HandleDeleteReview())
		r.Get("/{id}/changes", srv.HandleReviewChanges())
		r.Get("/{id}/concept-changes", srv.HandleConceptChanges())
	})

	if srv.gatherer != nil {
		r.Method(http.MethodGet, metricsPath, promhttp.HandlerFor(srv.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}
