package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-compliance-tasks/internal/platform/errors"
	"github.com/pesio-ai/be-compliance-tasks/internal/repository"
)

func newMastersFixture(emps ...*repository.Employee) (*MastersService, *provisionFixture) {
	f := newProvisionFixture(emps...)
	return NewMastersService(f.compliances, f.employees, f.pool, nopLog()), f
}

func TestCreateCompliance(t *testing.T) {
	svc, _ := newMastersFixture()
	ctx := context.Background()

	def, err := svc.CreateCompliance(ctx, adminA(), &CreateComplianceRequest{
		Name:       "  TDS return ",
		Department: "FIN",
		RiskTier:   "High",
		Frequency:  "Half-Yearly",
	})
	require.NoError(t, err)
	assert.Equal(t, "TDS return", def.Name)
	assert.Equal(t, "high", def.RiskTier)
	assert.Equal(t, repository.FrequencyHalfYearly, def.Frequency)
	assert.True(t, def.IsActive)

	_, err = svc.CreateCompliance(ctx, adminA(), &CreateComplianceRequest{Name: "x"})
	assert.Equal(t, errors.ErrCodeValidation, errors.CodeOf(err))

	_, err = svc.CreateCompliance(ctx, makerM(), &CreateComplianceRequest{Name: "x", Department: "FIN"})
	assert.Equal(t, errors.ErrCodeForbidden, errors.CodeOf(err))
}

func TestCreateEmployee(t *testing.T) {
	svc, _ := newMastersFixture(emp("s-1", "FIN", repository.RoleAdmin))
	ctx := context.Background()

	e, err := svc.CreateEmployee(ctx, adminA(), &CreateEmployeeRequest{
		Name:         "Asha",
		Email:        " Asha@Example.COM ",
		Department:   "FIN",
		Role:         "Checker",
		SupervisorID: strPtr("s-1"),
	})
	require.NoError(t, err)
	assert.Equal(t, "asha@example.com", e.Email)
	assert.Equal(t, repository.RoleChecker, e.Role)

	tests := []struct {
		name string
		req  CreateEmployeeRequest
	}{
		{"bad email", CreateEmployeeRequest{Name: "B", Email: "nope", Department: "FIN"}},
		{"no department", CreateEmployeeRequest{Name: "B", Email: "b@example.com"}},
		{"unknown supervisor", CreateEmployeeRequest{Name: "B", Email: "b@example.com", Department: "FIN", SupervisorID: strPtr("ghost")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateEmployee(ctx, adminA(), &tt.req)
			assert.Equal(t, errors.ErrCodeValidation, errors.CodeOf(err))
		})
	}

	_, err = svc.CreateEmployee(ctx, adminA(), &CreateEmployeeRequest{Name: "Dup", Email: "asha@example.com", Department: "FIN"})
	assert.Equal(t, errors.ErrCodeConflict, errors.CodeOf(err))
}

func TestBindAndUnbind(t *testing.T) {
	svc, f := newMastersFixture(
		emp("m-1", "FIN", repository.RoleMaker),
		emp("m-ops", "OPS", repository.RoleMaker),
	)
	ctx := context.Background()

	entry, err := svc.Bind(ctx, adminA(), "m-1", "c-1")
	require.NoError(t, err)
	assert.Equal(t, repository.PoolActive, entry.Status)

	_, err = svc.Bind(ctx, adminA(), "m-1", "c-1")
	assert.Equal(t, errors.ErrCodeConflict, errors.CodeOf(err))

	_, err = svc.Bind(ctx, adminA(), "m-ops", "c-1")
	assert.Equal(t, errors.ErrCodeValidation, errors.CodeOf(err), "cross-department binding")

	_, err = svc.Bind(ctx, checkerC(), "m-1", "c-1")
	assert.Equal(t, errors.ErrCodeForbidden, errors.CodeOf(err))

	require.NoError(t, svc.Unbind(ctx, adminA(), entry.ID))
	assert.Equal(t, repository.PoolInactive, f.pool.entries[0].Status)

	byCompliance, err := svc.ListPool(ctx, "c-1", "")
	require.NoError(t, err)
	assert.Len(t, byCompliance, 1)

	byEmployee, err := svc.ListPool(ctx, "", "m-1")
	require.NoError(t, err)
	assert.Len(t, byEmployee, 1)

	_, err = svc.ListPool(ctx, "c-1", "m-1")
	assert.Equal(t, errors.ErrCodeValidation, errors.CodeOf(err))
}

func TestDeactivateEmployeeStopsProvisioning(t *testing.T) {
	svc, f := newMastersFixture(emp("m-1", "FIN", repository.RoleMaker))
	ctx := context.Background()

	_, err := svc.Bind(ctx, adminA(), "m-1", "c-1")
	require.NoError(t, err)
	require.NoError(t, svc.SetEmployeeActive(ctx, adminA(), "m-1", false))

	summary, err := f.svc.ProvisionAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Created)

	assert.Equal(t, errors.ErrCodeNotFound, errors.CodeOf(svc.SetComplianceActive(ctx, adminA(), "c-x", false)))
}
