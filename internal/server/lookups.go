package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/joseph-ayodele/cfdi-bills/constants"
	"github.com/joseph-ayodele/cfdi-bills/internal/common"
	"github.com/joseph-ayodele/cfdi-bills/internal/entity"
)

const (
	defaultRunsLimit = 50
	maxRunsLimit     = 500
)

func (s *Server) unavailable(w http.ResponseWriter, r *http.Request, what string) {
	writeJSON(w, http.StatusServiceUnavailable, errorBody{
		Error:     what + " is not configured",
		RequestID: common.RequestIDFromContext(r.Context()),
	})
}

func (s *Server) handleVendors(w http.ResponseWriter, r *http.Request) {
	if s.deps.Directory == nil {
		s.unavailable(w, r, "vendor directory")
		return
	}
	vendors, err := s.deps.Directory.ListVendors(r.Context())
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]entity.NamedRef{"vendors": nonNil(vendors)})
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	if s.deps.Directory == nil {
		s.unavailable(w, r, "account directory")
		return
	}
	accountType := strings.TrimSpace(r.URL.Query().Get("type"))
	if accountType == "" {
		accountType = constants.DefaultAccountType
	}
	accounts, err := s.deps.Directory.ListAccounts(r.Context(), accountType)
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]entity.NamedRef{"accounts": nonNil(accounts)})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.deps.Runs == nil {
		s.unavailable(w, r, "run history")
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"), defaultRunsLimit, maxRunsLimit)
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	runs, err := s.deps.Runs.ListRuns(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	if runs == nil {
		runs = []*entity.RunRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleRunsExport(w http.ResponseWriter, r *http.Request) {
	if s.deps.Runs == nil || s.deps.Export == nil {
		s.unavailable(w, r, "run export")
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"), defaultRunsLimit, maxRunsLimit)
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	runs, err := s.deps.Runs.ListRuns(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	data, err := s.deps.Export.ExportRunsXLSX(r.Context(), runs)
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	name := fmt.Sprintf("bill-runs-%s.xlsx", time.Now().UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func nonNil(refs []entity.NamedRef) []entity.NamedRef {
	if refs == nil {
		return []entity.NamedRef{}
	}
	return refs
}

func parseLimit(raw string, def, ceiling int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, common.InvalidInputErrorf("limit must be a positive integer")
	}
	return min(n, ceiling), nil
}
