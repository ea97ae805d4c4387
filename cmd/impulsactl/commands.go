package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mg15best/impulsa-lov-sub001/internal/config"
	"github.com/mg15best/impulsa-lov-sub001/internal/core"
	"github.com/mg15best/impulsa-lov-sub001/internal/entitymodel/sqlbundle"
	"github.com/mg15best/impulsa-lov-sub001/internal/infra/persistence/postgres"
	"github.com/mg15best/impulsa-lov-sub001/pkg/domain"
)

func parseEntity(raw string) (domain.EntityType, error) {
	entity := domain.EntityType(strings.ToLower(strings.TrimSpace(raw)))
	if !entity.Valid() {
		names := make([]string, 0, len(domain.EntityTypes()))
		for _, e := range domain.EntityTypes() {
			names = append(names, string(e))
		}
		return "", fmt.Errorf("unknown entity %q (known: %s)", raw, strings.Join(names, ", "))
	}
	return entity, nil
}

func joinStates(states []domain.State) string {
	out := make([]string, len(states))
	for i, s := range states {
		out[i] = string(s)
	}
	return strings.Join(out, ", ")
}

func graphCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "graph <entity>",
		Short: "Print the lifecycle graph of an entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entity, err := parseEntity(args[0])
			if err != nil {
				return err
			}
			g, ok := core.Graph(entity)
			if !ok {
				fmt.Fprintf(cmd.OutOrStdout(), "%s has no lifecycle\n", entity)
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STATE\tNEXT")
			for _, state := range g.States() {
				next := joinStates(g.Successors(state))
				if next == "" {
					next = "(terminal)"
				}
				fmt.Fprintf(w, "%s\t%s\n", state, next)
			}
			return w.Flush()
		},
	}
}

func nextCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "next <entity> <state>",
		Short: "List the states reachable from a state, the state itself first",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			entity, err := parseEntity(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), joinStates(core.ValidNextStates(entity, domain.State(args[1]))))
			return nil
		},
	}
}

func explainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "explain <entity> <from> <to>",
		Short: "Explain whether a state change is allowed",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			entity, err := parseEntity(args[0])
			if err != nil {
				return err
			}
			from, to := domain.State(args[1]), domain.State(args[2])
			if core.CanTransition(entity, from, to) {
				fmt.Fprintf(cmd.OutOrStdout(), "allowed: %s -> %s\n", from, to)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), core.Explain(entity, from, to))
			return nil
		},
	}
}

func canCmd() *cobra.Command {
	var roles string
	cmd := &cobra.Command{
		Use:   "can <action> <entity>",
		Short: "Check whether a role set may perform an action",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			action := domain.Action(strings.ToLower(args[0]))
			if !action.Valid() {
				return fmt.Errorf("unknown action %q (known: create, edit, delete)", args[0])
			}
			entity, err := parseEntity(args[1])
			if err != nil {
				return err
			}
			if err := core.Authorize(domain.ParseRoles(roles), action, entity); err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), err.Error())
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "allowed: %s on %s\n", action, entity)
			return nil
		},
	}
	cmd.Flags().StringVar(&roles, "roles", "", "Comma separated roles of the actor")
	return cmd
}

func policyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "policy",
		Short: "Print the permission matrix",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ENTITY\tCREATE\tEDIT\tDELETE")
			for _, entity := range domain.EntityTypes() {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", entity,
					core.AllowedRolesLabel(domain.ActionCreate, entity),
					core.AllowedRolesLabel(domain.ActionEdit, entity),
					core.AllowedRolesLabel(domain.ActionDelete, entity))
			}
			return w.Flush()
		},
	}
}

func schemaCmd() *cobra.Command {
	var dialect string
	var rowSecurity bool
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the DDL for every entity table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			switch sqlbundle.Dialect(strings.ToLower(dialect)) {
			case sqlbundle.DialectSQLite:
				if rowSecurity {
					return fmt.Errorf("row level security requires the postgres dialect")
				}
				_, err := io.WriteString(out, sqlbundle.SQLite())
				return err
			case sqlbundle.DialectPostgres:
				if _, err := io.WriteString(out, sqlbundle.Postgres()); err != nil {
					return err
				}
				if rowSecurity {
					for _, stmt := range postgres.RowSecurityDDL() {
						if _, err := fmt.Fprintf(out, "%s;\n\n", stmt); err != nil {
							return err
						}
					}
				}
				return nil
			default:
				return fmt.Errorf("unknown dialect %q", dialect)
			}
		},
	}
	cmd.Flags().StringVar(&dialect, "dialect", string(sqlbundle.DialectSQLite), "SQL dialect (sqlite, postgres)")
	cmd.Flags().BoolVar(&rowSecurity, "row-security", false, "Append row level security policies (postgres only)")
	return cmd
}

func decodePayload(raw string) (domain.Row, error) {
	if strings.TrimSpace(raw) == "" {
		return domain.Row{}, nil
	}
	var row domain.Row
	if err := json.Unmarshal([]byte(raw), &row); err != nil {
		return nil, fmt.Errorf("decode --json payload: %w", err)
	}
	return row, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type insertOutput struct {
	Data           domain.Row `json:"data,omitempty"`
	Attempts       int        `json:"attempts"`
	RemovedColumns []string   `json:"removed_columns"`
	Error          string     `json:"error,omitempty"`
}

func insertCmd(a *app) *cobra.Command {
	var payload string
	var protected []string
	var attempts int
	cmd := &cobra.Command{
		Use:   "insert <table>",
		Short: "Insert a payload, pruning columns the backend does not know",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			row, err := decodePayload(payload)
			if err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if attempts == 0 {
				attempts = cfg.Insert.MaxAttempts
			}
			ctx := cmd.Context()
			logger := core.NewSlogLogger(a.logger())
			backend, closeBackend, err := core.OpenBackend(ctx, cfg.Backend, logger)
			if err != nil {
				return err
			}
			defer func() { _ = closeBackend() }()

			table := args[0]
			res := core.InsertWithSchemaFallback(ctx, core.InsertRequest{
				Table:   table,
				Payload: row,
				Insert: func(ctx context.Context, p domain.Row) (domain.Row, error) {
					return backend.Insert(ctx, table, p)
				},
				MaxAttempts: attempts,
				Protected:   protected,
				Logger:      logger,
			})
			out := insertOutput{Data: res.Data, Attempts: res.Attempts, RemovedColumns: res.RemovedColumns}
			if res.Err != nil {
				out.Error = res.Err.Error()
			}
			if err := writeJSON(cmd.OutOrStdout(), out); err != nil {
				return err
			}
			return res.Err
		},
	}
	cmd.Flags().StringVar(&payload, "json", "", "JSON object to insert")
	cmd.Flags().StringSliceVar(&protected, "protect", nil, "Columns that must never be pruned")
	cmd.Flags().IntVar(&attempts, "attempts", 0, "Initial attempt budget (defaults to IMPULSA_INSERT_MAX_ATTEMPTS)")
	return cmd
}

type actorFlags struct {
	id    string
	roles string
}

func (f *actorFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.id, "actor", "", "Actor id recorded with the write")
	cmd.Flags().StringVar(&f.roles, "roles", "", "Comma separated roles of the actor")
}

func (f *actorFlags) actor() domain.Actor {
	return domain.Actor{ID: f.id, Roles: domain.ParseRoles(f.roles)}
}

func (a *app) withService(cmd *cobra.Command, fn func(context.Context, *core.Service) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if a.trace != "" {
		cfg.Trace.Mode = a.trace
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	svc, closeFn, err := core.Bootstrap(cmd.Context(), cfg, core.NewSlogLogger(a.logger()))
	if err != nil {
		return err
	}
	runErr := fn(cmd.Context(), svc)
	if err := closeFn(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func createCmd(a *app) *cobra.Command {
	var payload string
	var who actorFlags
	cmd := &cobra.Command{
		Use:   "create <entity>",
		Short: "Create a record through the policy and lifecycle checks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entity, err := parseEntity(args[0])
			if err != nil {
				return err
			}
			row, err := decodePayload(payload)
			if err != nil {
				return err
			}
			return a.withService(cmd, func(ctx context.Context, svc *core.Service) error {
				res, err := svc.Create(ctx, who.actor(), entity, row)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), insertOutput{Data: res.Record, Attempts: res.Attempts, RemovedColumns: res.RemovedColumns})
			})
		},
	}
	cmd.Flags().StringVar(&payload, "json", "", "JSON object with the record fields")
	who.bind(cmd)
	return cmd
}

func transitionCmd(a *app) *cobra.Command {
	var who actorFlags
	cmd := &cobra.Command{
		Use:   "transition <entity> <id> <state>",
		Short: "Move a record to a new lifecycle state",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			entity, err := parseEntity(args[0])
			if err != nil {
				return err
			}
			return a.withService(cmd, func(ctx context.Context, svc *core.Service) error {
				row, err := svc.Transition(ctx, who.actor(), entity, args[1], domain.State(args[2]))
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), row)
			})
		},
	}
	who.bind(cmd)
	return cmd
}

func deleteCmd(a *app) *cobra.Command {
	var who actorFlags
	cmd := &cobra.Command{
		Use:   "delete <entity> <id>",
		Short: "Delete a record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			entity, err := parseEntity(args[0])
			if err != nil {
				return err
			}
			return a.withService(cmd, func(ctx context.Context, svc *core.Service) error {
				if err := svc.Delete(ctx, who.actor(), entity, args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s %s\n", entity, args[1])
				return nil
			})
		},
	}
	who.bind(cmd)
	return cmd
}
