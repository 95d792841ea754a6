package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fichaje/holded-relay/internal/relayclient"
)

func newEmployeesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "employees",
		Aliases: []string{"ls"},
		Short:   "List every employee of the account",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			employees, err := a.client.Employees(cmd.Context(), a.session)
			if err != nil {
				return explain(err)
			}

			if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
				return writeJSON(cmd, employees)
			}

			if len(employees) == 0 {
				a.printer.Warning("no employees found")
				return nil
			}

			table := NewTable(cmd.OutOrStdout(), []string{"ID", "Name", "Email"})
			for _, raw := range employees {
				var e map[string]any
				if err := json.Unmarshal(raw, &e); err != nil {
					a.log.Debug().Err(err).Msg("skipping non-object employee")
					continue
				}
				name := strings.TrimSpace(text(e, "name") + " " + text(e, "lastName"))
				table.AddRow(text(e, "id"), name, text(e, "email"))
			}
			if err := table.Render(); err != nil {
				return err
			}
			a.printer.Print("%s", a.printer.Dim(fmt.Sprintf("%d employees", len(employees))))
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "output the raw employee array as JSON")
	return cmd
}

func newTimesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "times <employee-id>",
		Short: "Show an employee's time entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := a.client.EmployeeTimes(cmd.Context(), a.session, args[0])
			if err != nil {
				return explain(err)
			}
			return writeJSON(cmd, body)
		},
	}
}

type clockAction struct {
	use  string
	desc string
	done string
	call func(c *relayclient.Client, ctx context.Context, s relayclient.Session, employeeID string) (json.RawMessage, error)
}

var (
	clockIn = clockAction{
		use:  "clockin",
		desc: "Start a time entry for an employee",
		done: "Clocked in %s",
		call: (*relayclient.Client).ClockIn,
	}
	clockOut = clockAction{
		use:  "clockout",
		desc: "Close the running time entry of an employee",
		done: "Clocked out %s",
		call: (*relayclient.Client).ClockOut,
	}
)

func newClockCmd(a *app, action clockAction) *cobra.Command {
	return &cobra.Command{
		Use:   action.use + " <employee-id>",
		Short: action.desc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := action.call(a.client, cmd.Context(), a.session, args[0])
			if err != nil {
				return explain(err)
			}
			a.printer.Success(action.done, args[0])
			if len(body) > 0 && string(body) != "null" {
				a.printer.Print("%s", a.printer.Dim(string(body)))
			}
			return nil
		},
	}
}

func writeJSON(cmd *cobra.Command, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return err
	}
	buf.WriteByte('\n')
	_, err = cmd.OutOrStdout().Write(buf.Bytes())
	return err
}

func text(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
