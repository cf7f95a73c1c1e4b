// Package rpc defines the compliance.v1.WorkflowService wire contract. The
// service has no generated stubs; messages travel as JSON under the "json"
// content subtype.
package rpc

import (
	"encoding/json"
	"time"

	"google.golang.org/grpc/encoding"

	"github.com/pesio-ai/be-compliance-tasks/internal/repository"
	"github.com/pesio-ai/be-compliance-tasks/internal/service"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "compliance.v1.WorkflowService"

// Method names.
const (
	MethodListTasks      = "ListTasks"
	MethodGetTask        = "GetTask"
	MethodGetEscalations = "GetEscalations"
	MethodSubmit         = "Submit"
	MethodApprove        = "Approve"
	MethodReject         = "Reject"
	MethodSendBack       = "SendBack"
	MethodReopen         = "Reopen"
	MethodSweep          = "Sweep"
	MethodProvision      = "Provision"
)

// FullMethod returns "/<service>/<method>".
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// CodecName is the content subtype both sides use.
const CodecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return CodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type ListTasksRequest struct {
	MakerID      string   `json:"maker_id,omitempty"`
	CheckerID    string   `json:"checker_id,omitempty"`
	ComplianceID string   `json:"compliance_id,omitempty"`
	Statuses     []string `json:"statuses,omitempty"`
	OverdueOnly  bool     `json:"overdue_only,omitempty"`
}

// Filter converts the request into a repository filter as of now.
func (r *ListTasksRequest) Filter(now time.Time) repository.TaskFilter {
	f := repository.TaskFilter{
		MakerID:      r.MakerID,
		CheckerID:    r.CheckerID,
		ComplianceID: r.ComplianceID,
	}
	for _, s := range r.Statuses {
		f.Statuses = append(f.Statuses, repository.TaskStatus(s))
	}
	if r.OverdueOnly {
		u := now.UTC()
		today := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
		f.DueBefore = &today
		if len(f.Statuses) == 0 {
			f.Statuses = repository.OpenStatuses
		}
	}
	return f
}

type ListTasksResponse struct {
	Tasks []*repository.TaskInstance `json:"tasks"`
}

type TaskRequest struct {
	TaskID string `json:"task_id"`
}

// TransitionRequest drives one workflow edge. Document fields apply to
// Submit only.
type TransitionRequest struct {
	TaskID       string `json:"task_id"`
	Remarks      string `json:"remarks,omitempty"`
	DocumentName string `json:"document_name,omitempty"`
	Document     []byte `json:"document,omitempty"`
}

type TaskResponse struct {
	Task *repository.TaskInstance `json:"task"`
}

type EscalationsResponse struct {
	Escalations []*repository.EscalationRecord `json:"escalations"`
}

type Empty struct{}

type SweepResponse struct {
	Summary service.SweepSummary `json:"summary"`
}

type ProvisionResponse struct {
	Summary service.ProvisionSummary `json:"summary"`
}
