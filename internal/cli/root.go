// Package cli implements compliancectl, the operator command line for the
// compliance tasks service.
package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/pesio-ai/be-compliance-tasks/internal/client"
)

// options are the connection flags shared by every remote command.
type options struct {
	addr       string
	token      string
	employeeID string
	role       string
	timeout    time.Duration

	dialOpts []grpc.DialOption
}

// NewRootCmd builds the compliancectl command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "compliancectl",
		Short: "Operate the compliance tasks service",
		Long: `compliancectl drives the maker-checker workflow over gRPC and runs
administrative jobs (migrations, escalation sweeps, provisioning).

Authenticate with --token, or with --employee/--role against a server
running with the development header enabled.`,
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.addr, "addr", envOr("COMPLIANCE_GRPC_ADDR", "localhost:9086"), "gRPC address of the service")
	pf.StringVar(&opts.token, "token", os.Getenv("COMPLIANCE_TOKEN"), "bearer token")
	pf.StringVar(&opts.employeeID, "employee", os.Getenv("COMPLIANCE_EMPLOYEE_ID"), "employee id (development header)")
	pf.StringVar(&opts.role, "role", os.Getenv("COMPLIANCE_ROLE"), "employee role (development header)")
	pf.DurationVar(&opts.timeout, "timeout", 30*time.Second, "per-call timeout")

	root.AddCommand(TaskCmd(opts))
	root.AddCommand(SweepCmd(opts))
	root.AddCommand(ProvisionCmd(opts))
	root.AddCommand(MigrateCmd())
	root.AddCommand(TokenCmd())
	root.AddCommand(WatchCmd())

	return root
}

// dial connects to the service with the caller's credentials.
func (o *options) dial() (*client.WorkflowGRPCClient, error) {
	if o.token == "" && o.employeeID == "" {
		return nil, fmt.Errorf("no credentials: pass --token or --employee")
	}
	return client.NewWorkflowGRPCClient(o.addr, client.Credentials{
		Token:      o.token,
		EmployeeID: o.employeeID,
		Role:       o.role,
	}, o.dialOpts...)
}

// callContext bounds a single remote call.
func (o *options) callContext(parent context.Context) (context.Context, context.CancelFunc) {
	if o.timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, o.timeout)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
