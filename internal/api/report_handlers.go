package api

import (
	"fmt"
	"net/http"

	"github.com/oneone404/One-Shield-sub000/internal/apperror"
	"github.com/oneone404/One-Shield-sub000/internal/models"
	"github.com/oneone404/One-Shield-sub000/internal/reports"
)

func (rt *Router) handleExecutiveReport(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	org, ok := rt.callerOrg(w, r, p.OrgID)
	if !ok {
		return
	}
	report, err := rt.reports.Executive(r.Context(), org)
	if err != nil {
		writeError(w, r, storeErr(err))
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleExecutiveExport renders the executive report as a download. The
// format query parameter selects json, csv, or pdf.
func (rt *Router) handleExecutiveExport(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	format, err := reports.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, r, apperror.Validation("Unsupported report format"))
		return
	}
	org, ok := rt.callerOrg(w, r, p.OrgID)
	if !ok {
		return
	}
	report, err := rt.reports.Executive(r.Context(), org)
	if err != nil {
		writeError(w, r, storeErr(err))
		return
	}

	filename := fmt.Sprintf("security-report-%s", report.GeneratedAt.Format("2006-01-02"))
	switch format {
	case reports.FormatCSV:
		data, err := reports.NewCSVGenerator().Generate(report)
		if err != nil {
			writeError(w, r, apperror.Internal(err))
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename+".csv"))
		w.Write(data)
	case reports.FormatPDF:
		data, err := reports.NewPDFGenerator().Generate(report)
		if err != nil {
			writeError(w, r, apperror.Internal(err))
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename+".pdf"))
		w.Write(data)
	default:
		writeJSON(w, http.StatusOK, report)
	}
}

func (rt *Router) handleComplianceReport(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	org, ok := rt.callerOrg(w, r, p.OrgID)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, rt.reports.Compliance(org))
}

// callerOrg loads the caller's organization row; a missing row means the
// token outlived its org.
func (rt *Router) callerOrg(w http.ResponseWriter, r *http.Request, orgID string) (*models.Organization, bool) {
	org, err := rt.store.GetOrganization(r.Context(), orgID)
	if err != nil {
		writeError(w, r, storeErr(err))
		return nil, false
	}
	if org == nil {
		writeError(w, r, apperror.NotFound("Organization not found"))
		return nil, false
	}
	return org, true
}
