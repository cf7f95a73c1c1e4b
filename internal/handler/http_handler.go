package handler

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pesio-ai/be-compliance-tasks/internal/documents"
	"github.com/pesio-ai/be-compliance-tasks/internal/platform/auth"
	"github.com/pesio-ai/be-compliance-tasks/internal/platform/errors"
	"github.com/pesio-ai/be-compliance-tasks/internal/platform/logger"
	"github.com/pesio-ai/be-compliance-tasks/internal/repository"
	"github.com/pesio-ai/be-compliance-tasks/internal/rpc"
	"github.com/pesio-ai/be-compliance-tasks/internal/service"
)

// Services bundles what the transport handlers call into.
type Services struct {
	Workflow     *service.WorkflowService
	Escalation   *service.EscalationService
	Provisioning *service.ProvisioningService
	Assignment   *service.AssignmentService
	Masters      *service.MastersService
	Documents    documents.Store
}

// HTTPHandler handles HTTP requests
type HTTPHandler struct {
	svc       Services
	maxUpload int64
	now       func() time.Time
	log       *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(svc Services, maxUpload int64, log *logger.Logger) *HTTPHandler {
	if maxUpload <= 0 {
		maxUpload = 20 << 20
	}
	return &HTTPHandler{svc: svc, maxUpload: maxUpload, now: time.Now, log: log}
}

// Routes returns the /api/v1 router. Authentication runs before it.
func (h *HTTPHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/tasks", func(r chi.Router) {
		r.Get("/", h.ListTasks)
		r.Route("/{taskID}", func(r chi.Router) {
			r.Get("/", h.GetTask)
			r.Get("/escalations", h.GetEscalations)
			r.Get("/document", h.GetDocument)
			r.Post("/submit", h.Submit)
			r.Post("/approve", h.review(rpc.MethodApprove))
			r.Post("/reject", h.review(rpc.MethodReject))
			r.Post("/send-back", h.review(rpc.MethodSendBack))
			r.Post("/reopen", h.Reopen)
		})
	})

	r.Route("/compliances", func(r chi.Router) {
		r.Get("/", h.ListCompliances)
		r.Post("/", h.CreateCompliance)
		r.Get("/unassigned", h.ListUnassigned)
		r.Get("/{complianceID}", h.GetCompliance)
		r.Put("/{complianceID}/active", h.SetComplianceActive)
		r.Get("/{complianceID}/candidates", h.Candidates)
		r.Post("/{complianceID}/assign", h.Assign)
	})

	r.Route("/employees", func(r chi.Router) {
		r.Get("/", h.ListEmployees)
		r.Post("/", h.CreateEmployee)
		r.Get("/{employeeID}", h.GetEmployee)
		r.Put("/{employeeID}/active", h.SetEmployeeActive)
	})

	r.Route("/pool", func(r chi.Router) {
		r.Get("/", h.ListPool)
		r.Post("/", h.Bind)
		r.Delete("/{entryID}", h.Unbind)
	})

	r.Get("/escalations/open", h.OpenEscalations)
	r.Post("/escalations/sweep", h.Sweep)
	r.Post("/provision", h.Provision)
	return r
}

// ── Tasks ─────────────────────────────────────────────────────────────────────

// ListTasks handles GET /tasks
func (h *HTTPHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	viewer, ok := h.viewer(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	req := rpc.ListTasksRequest{
		MakerID:      q.Get("maker_id"),
		CheckerID:    q.Get("checker_id"),
		ComplianceID: q.Get("compliance_id"),
		Statuses:     splitList(q.Get("status")),
		OverdueOnly:  q.Get("overdue") == "true",
	}
	for _, s := range req.Statuses {
		if !repository.TaskStatus(s).Valid() {
			h.writeError(w, r, errors.InvalidInput("status", "unknown status "+strconv.Quote(s)))
			return
		}
	}

	tasks, err := h.svc.Workflow.ListTasks(r.Context(), viewer, req.Filter(h.now()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks, "total": len(tasks)})
}

// GetTask handles GET /tasks/{taskID}
func (h *HTTPHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	viewer, ok := h.viewer(w, r)
	if !ok {
		return
	}
	task, err := h.svc.Workflow.GetTask(r.Context(), viewer, chi.URLParam(r, "taskID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// GetEscalations handles GET /tasks/{taskID}/escalations
func (h *HTTPHandler) GetEscalations(w http.ResponseWriter, r *http.Request) {
	viewer, ok := h.viewer(w, r)
	if !ok {
		return
	}
	records, err := h.svc.Workflow.GetEscalations(r.Context(), viewer, chi.URLParam(r, "taskID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"escalations": records})
}

// GetDocument streams the evidence attached to a visible task.
func (h *HTTPHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	viewer, ok := h.viewer(w, r)
	if !ok {
		return
	}
	task, err := h.svc.Workflow.GetTask(r.Context(), viewer, chi.URLParam(r, "taskID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if task.DocumentRef == nil {
		h.writeError(w, r, errors.NotFound("document", task.ID))
		return
	}
	data, err := h.svc.Documents.Get(r.Context(), *task.DocumentRef)
	if err != nil {
		h.writeError(w, r, errors.Unavailable(err, "failed to read document"))
		return
	}

	name := (*task.DocumentRef)[strings.LastIndex(*task.DocumentRef, "/")+1:]
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Submit handles POST /tasks/{taskID}/submit. The body is either JSON
// {"remarks": "..."} or multipart/form-data with a "remarks" field and an
// optional "document" file.
func (h *HTTPHandler) Submit(w http.ResponseWriter, r *http.Request) {
	viewer, ok := h.viewer(w, r)
	if !ok {
		return
	}

	req := service.SubmitRequest{TaskID: chi.URLParam(r, "taskID")}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+(1<<20))

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(h.maxUpload); err != nil {
			h.writeError(w, r, errors.InvalidInput("document", "invalid or oversized upload"))
			return
		}
		req.Remarks = r.FormValue("remarks")

		file, header, err := r.FormFile("document")
		switch {
		case err == http.ErrMissingFile:
		case err != nil:
			h.writeError(w, r, errors.InvalidInput("document", "invalid upload"))
			return
		default:
			defer file.Close()
			data, err := io.ReadAll(io.LimitReader(file, h.maxUpload+1))
			if err != nil {
				h.writeError(w, r, errors.InvalidInput("document", "failed to read upload"))
				return
			}
			if int64(len(data)) > h.maxUpload {
				h.writeError(w, r, errors.InvalidInput("document", "document exceeds upload limit"))
				return
			}
			req.Document = &service.Document{Name: header.Filename, Data: data}
		}
	} else {
		var body struct {
			Remarks string `json:"remarks"`
		}
		if !h.decodeJSON(w, r, &body) {
			return
		}
		req.Remarks = body.Remarks
	}

	task, err := h.svc.Workflow.Submit(r.Context(), viewer, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// review handles the checker decisions.
func (h *HTTPHandler) review(method string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewer, ok := h.viewer(w, r)
		if !ok {
			return
		}
		var body struct {
			Remarks string `json:"remarks"`
		}
		if r.ContentLength != 0 && !h.decodeJSON(w, r, &body) {
			return
		}

		taskID := chi.URLParam(r, "taskID")
		var (
			task *repository.TaskInstance
			err  error
		)
		switch method {
		case rpc.MethodApprove:
			task, err = h.svc.Workflow.Approve(r.Context(), viewer, taskID, body.Remarks)
		case rpc.MethodReject:
			task, err = h.svc.Workflow.Reject(r.Context(), viewer, taskID, body.Remarks)
		default:
			task, err = h.svc.Workflow.SendBack(r.Context(), viewer, taskID, body.Remarks)
		}
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, task)
	}
}

// Reopen handles POST /tasks/{taskID}/reopen
func (h *HTTPHandler) Reopen(w http.ResponseWriter, r *http.Request) {
	viewer, ok := h.viewer(w, r)
	if !ok {
		return
	}
	task, err := h.svc.Workflow.Reopen(r.Context(), viewer, chi.URLParam(r, "taskID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// ── Compliance definitions and assignment ────────────────────────────────────

// ListCompliances handles GET /compliances
func (h *HTTPHandler) ListCompliances(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.viewer(w, r); !ok {
		return
	}
	defs, err := h.svc.Masters.ListCompliances(r.Context(), r.URL.Query().Get("active") == "true")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"compliances": defs})
}

// CreateCompliance handles POST /compliances
func (h *HTTPHandler) CreateCompliance(w http.ResponseWriter, r *http.Request) {
	viewer, ok := h.viewer(w, r)
	if !ok {
		return
	}
	var body struct {
		Name        string  `json:"name"`
		Category    string  `json:"category"`
		Department  string  `json:"department"`
		RiskTier    string  `json:"risk_tier"`
		Frequency   string  `json:"frequency"`
		Description *string `json:"description"`
	}
	if !h.decodeJSON(w, r, &body) {
		return
	}
	def, err := h.svc.Masters.CreateCompliance(r.Context(), viewer, &service.CreateComplianceRequest{
		Name:        body.Name,
		Category:    body.Category,
		Department:  body.Department,
		RiskTier:    body.RiskTier,
		Frequency:   body.Frequency,
		Description: body.Description,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, def)
}

// GetCompliance handles GET /compliances/{complianceID}
func (h *HTTPHandler) GetCompliance(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.viewer(w, r); !ok {
		return
	}
	def, err := h.svc.Masters.GetCompliance(r.Context(), chi.URLParam(r, "complianceID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, def)
}

// SetComplianceActive handles PUT /compliances/{complianceID}/active
func (h *HTTPHandler) SetComplianceActive(w http.ResponseWriter, r *http.Request) {
	viewer, ok := h.viewer(w, r)
	if !ok {
		return
	}
	var body struct {
		Active bool `json:"active"`
	}
	if !h.decodeJSON(w, r, &body) {
		return
	}
	if err := h.svc.Masters.SetComplianceActive(r.Context(), viewer, chi.URLParam(r, "complianceID"), body.Active); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListUnassigned handles GET /compliances/unassigned
func (h *HTTPHandler) ListUnassigned(w http.ResponseWriter, r *http.Request) {
	viewer, ok := h.viewer(w, r)
	if !ok {
		return
	}
	defs, err := h.svc.Assignment.Unassigned(r.Context(), viewer)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"compliances": defs})
}

// Candidates handles GET /compliances/{complianceID}/candidates
func (h *HTTPHandler) Candidates(w http.ResponseWriter, r *http.Request) {
	viewer, ok := h.viewer(w, r)
	if !ok {
		return
	}
	c, err := h.svc.Assignment.Candidates(r.Context(), viewer, chi.URLParam(r, "complianceID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// Assign handles POST /compliances/{complianceID}/assign
func (h *HTTPHandler) Assign(w http.ResponseWriter, r *http.Request) {
	viewer, ok := h.viewer(w, r)
	if !ok {
		return
	}
	var body struct {
		MakerID   string  `json:"maker_id"`
		CheckerID *string `json:"checker_id"`
	}
	if !h.decodeJSON(w, r, &body) {
		return
	}
	out, err := h.svc.Assignment.Assign(r.Context(), viewer, service.AssignRequest{
		ComplianceID: chi.URLParam(r, "complianceID"),
		MakerID:      body.MakerID,
		CheckerID:    body.CheckerID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

// ── Directory ─────────────────────────────────────────────────────────────────

// ListEmployees handles GET /employees
func (h *HTTPHandler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.viewer(w, r); !ok {
		return
	}
	q := r.URL.Query()
	f := repository.EmployeeFilter{
		Department: q.Get("department"),
		ActiveOnly: q.Get("active") == "true",
	}
	for _, role := range splitList(q.Get("role")) {
		f.Roles = append(f.Roles, repository.ParseRole(role))
	}
	emps, err := h.svc.Masters.ListEmployees(r.Context(), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"employees": emps})
}

// CreateEmployee handles POST /employees
func (h *HTTPHandler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	viewer, ok := h.viewer(w, r)
	if !ok {
		return
	}
	var body struct {
		Name         string  `json:"name"`
		Email        string  `json:"email"`
		Department   string  `json:"department"`
		Role         string  `json:"role"`
		SupervisorID *string `json:"supervisor_id"`
	}
	if !h.decodeJSON(w, r, &body) {
		return
	}
	emp, err := h.svc.Masters.CreateEmployee(r.Context(), viewer, &service.CreateEmployeeRequest{
		Name:         body.Name,
		Email:        body.Email,
		Department:   body.Department,
		Role:         body.Role,
		SupervisorID: body.SupervisorID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, emp)
}

// GetEmployee handles GET /employees/{employeeID}
func (h *HTTPHandler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.viewer(w, r); !ok {
		return
	}
	emp, err := h.svc.Masters.GetEmployee(r.Context(), chi.URLParam(r, "employeeID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, emp)
}

// SetEmployeeActive handles PUT /employees/{employeeID}/active
func (h *HTTPHandler) SetEmployeeActive(w http.ResponseWriter, r *http.Request) {
	viewer, ok := h.viewer(w, r)
	if !ok {
		return
	}
	var body struct {
		Active bool `json:"active"`
	}
	if !h.decodeJSON(w, r, &body) {
		return
	}
	if err := h.svc.Masters.SetEmployeeActive(r.Context(), viewer, chi.URLParam(r, "employeeID"), body.Active); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── Assignment pool ───────────────────────────────────────────────────────────

// ListPool handles GET /pool?compliance_id=|employee_id=
func (h *HTTPHandler) ListPool(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.viewer(w, r); !ok {
		return
	}
	q := r.URL.Query()
	entries, err := h.svc.Masters.ListPool(r.Context(), q.Get("compliance_id"), q.Get("employee_id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// Bind handles POST /pool
func (h *HTTPHandler) Bind(w http.ResponseWriter, r *http.Request) {
	viewer, ok := h.viewer(w, r)
	if !ok {
		return
	}
	var body struct {
		EmployeeID   string `json:"employee_id"`
		ComplianceID string `json:"compliance_id"`
	}
	if !h.decodeJSON(w, r, &body) {
		return
	}
	entry, err := h.svc.Masters.Bind(r.Context(), viewer, body.EmployeeID, body.ComplianceID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// Unbind handles DELETE /pool/{entryID}
func (h *HTTPHandler) Unbind(w http.ResponseWriter, r *http.Request) {
	viewer, ok := h.viewer(w, r)
	if !ok {
		return
	}
	if err := h.svc.Masters.Unbind(r.Context(), viewer, chi.URLParam(r, "entryID")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── Batch operations ─────────────────────────────────────────────────────────

// OpenEscalations handles GET /escalations/open
func (h *HTTPHandler) OpenEscalations(w http.ResponseWriter, r *http.Request) {
	viewer, ok := h.viewer(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 500 {
		limit = 100
	}
	records, err := h.svc.Workflow.OpenEscalations(r.Context(), viewer, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"escalations": records})
}

// Sweep handles POST /escalations/sweep
func (h *HTTPHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	viewer, ok := h.viewer(w, r)
	if !ok {
		return
	}
	if !viewer.IsAdmin() {
		h.writeError(w, r, errors.Forbidden("admin role required"))
		return
	}
	summary, err := h.svc.Escalation.Sweep(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// Provision handles POST /provision
func (h *HTTPHandler) Provision(w http.ResponseWriter, r *http.Request) {
	viewer, ok := h.viewer(w, r)
	if !ok {
		return
	}
	if !viewer.IsAdmin() {
		h.writeError(w, r, errors.Forbidden("admin role required"))
		return
	}
	summary, err := h.svc.Provisioning.ProvisionAll(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// Health handles GET /health
func Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// ── Helpers ──────────────────────────────────────────────────────────────────

// viewer resolves the authenticated caller, writing 401 when there is none.
func (h *HTTPHandler) viewer(w http.ResponseWriter, r *http.Request) (service.Viewer, bool) {
	uc, err := auth.GetUserContext(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return service.Viewer{}, false
	}
	return viewerFromUser(uc), true
}

func viewerFromUser(uc *auth.UserContext) service.Viewer {
	return service.Viewer{EmployeeID: uc.EmployeeID, Role: repository.ParseRole(uc.Role)}
}

func (h *HTTPHandler) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && err != io.EOF {
		h.writeError(w, r, errors.InvalidInput("body", "invalid request body"))
		return false
	}
	return true
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatus(err)
	body := map[string]any{"code": errors.CodeOf(err), "message": "internal error"}

	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		body["message"] = appErr.Message
		if len(appErr.Details) > 0 {
			body["details"] = appErr.Details
		}
	}

	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	}
	writeJSON(w, status, map[string]any{"error": body})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
