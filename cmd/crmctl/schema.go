package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"advisorcrm/internal/domain/crm"
	"advisorcrm/internal/metadata"
)

var version = "dev"

type options struct {
	format  string
	noColor bool
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "crmctl",
		Short:         "Advisor CRM schema tooling",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.noColor {
				color.NoColor = true
			}
		},
	}
	root.PersistentFlags().StringVar(&opts.format, "format", "table", "Output format: json or table")
	root.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")

	root.AddCommand(newSchemaCommand(opts))
	return root
}

func newSchemaCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect registered classes",
		Example: `  crmctl schema list
  crmctl schema show Contact --format json
  crmctl schema order
  crmctl schema check`,
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List classes with their tables",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withRegistry(func(reg *metadata.Registry) error {
					return runList(cmd.OutOrStdout(), reg, opts.format)
				})
			},
		},
		&cobra.Command{
			Use:   "show <class>",
			Short: "Show fields, relationships and hooks of a class",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withRegistry(func(reg *metadata.Registry) error {
					return runShow(cmd.OutOrStdout(), reg, args[0], opts.format)
				})
			},
		},
		&cobra.Command{
			Use:   "order",
			Short: "Print the order in which a batch writes classes",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withRegistry(func(reg *metadata.Registry) error {
					return runOrder(cmd.OutOrStdout(), reg, opts.format)
				})
			},
		},
		&cobra.Command{
			Use:   "check",
			Short: "Build and freeze the schema, reporting configuration faults",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runCheck(cmd.OutOrStdout(), crm.NewRegistry)
			},
		},
	)
	return cmd
}

func withRegistry(fn func(reg *metadata.Registry) error) error {
	reg, err := crm.NewRegistry(nil)
	if err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	return fn(reg)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func checkFormat(format string) error {
	switch format {
	case "json", "table":
		return nil
	default:
		return fmt.Errorf("unsupported format: %s (supported: json, table)", format)
	}
}

func runList(w io.Writer, reg *metadata.Registry, format string) error {
	if err := checkFormat(format); err != nil {
		return err
	}
	if format == "json" {
		views := make([]metadata.ClassView, 0, len(reg.Classes()))
		for _, class := range reg.Classes() {
			view, err := reg.Describe(class)
			if err != nil {
				return err
			}
			views = append(views, view)
		}
		return writeJSON(w, views)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	header := color.New(color.FgCyan, color.Bold)
	header.Fprintln(tw, "CLASS\tTABLE\tPERSISTED\tDERIVED\tENCRYPTED")
	for _, class := range reg.Classes() {
		meta := reg.MustGet(class)
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\n",
			class, meta.Table(), len(meta.Persisted()), len(meta.ComputedAttributes()), len(meta.EncryptedFields()))
	}
	return tw.Flush()
}

func runShow(w io.Writer, reg *metadata.Registry, class, format string) error {
	if err := checkFormat(format); err != nil {
		return err
	}
	view, err := reg.Describe(class)
	if err != nil {
		return err
	}
	if format == "json" {
		return writeJSON(w, view)
	}

	title := color.New(color.FgCyan, color.Bold)
	title.Fprintf(w, "%s", view.Name)
	fmt.Fprintf(w, " (%s)\n\n", view.Table)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FIELD\tKIND\tFLAGS\tDEPENDS ON")
	for _, f := range view.Fields {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", f.Name, f.Kind, fieldFlags(f), strings.Join(f.Dependencies, ", "))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(view.Relationships) > 0 {
		fmt.Fprintln(w)
		title.Fprintln(w, "Relationships")
		for _, r := range view.Relationships {
			side := "one"
			if r.IsArray {
				side = "many"
			}
			if r.IsRelationRoot {
				side = "root, key " + r.IDProperty
			}
			fmt.Fprintf(w, "  %s -> %s (%s)\n", r.Property, r.TargetClass, side)
		}
	}
	if len(view.JoinTables) > 0 {
		fmt.Fprintln(w)
		title.Fprintln(w, "Join tables")
		for _, j := range view.JoinTables {
			fmt.Fprintf(w, "  %s -> %s via %s\n", j.Property, j.TargetClass, j.JoinClass)
		}
	}
	if len(view.Hooks) > 0 {
		fmt.Fprintln(w)
		title.Fprintln(w, "Hooks")
		for _, event := range metadata.Events {
			for _, when := range []metadata.When{metadata.Before, metadata.After} {
				key := string(event) + "." + string(when)
				if n, ok := view.Hooks[key]; ok {
					fmt.Fprintf(w, "  %s: %d\n", key, n)
				}
			}
		}
	}
	return nil
}

func fieldFlags(f metadata.FieldView) string {
	var flags []string
	if f.Required {
		flags = append(flags, "required")
	}
	if f.HasDefault {
		flags = append(flags, "default")
	}
	if f.Cached {
		flags = append(flags, "cached")
	}
	if f.Encryption != nil {
		if f.Encryption.Unique {
			flags = append(flags, "encrypted:unique")
		} else {
			flags = append(flags, "encrypted")
		}
	}
	if len(flags) == 0 {
		return "-"
	}
	return strings.Join(flags, ",")
}

func runOrder(w io.Writer, reg *metadata.Registry, format string) error {
	if err := checkFormat(format); err != nil {
		return err
	}
	order, err := reg.DependencyOrder()
	if err != nil {
		return err
	}
	if format == "json" {
		return writeJSON(w, order)
	}
	for i, class := range order {
		fmt.Fprintf(w, "%d. %s\n", i+1, class)
	}
	return nil
}

// runCheck builds the schema with build and reports the outcome.
func runCheck(w io.Writer, build func(crm.Locator) (*metadata.Registry, error)) error {
	reg, err := build(nil)
	if err != nil {
		fmt.Fprintln(w, color.RedString("✗ schema invalid"))
		return err
	}
	if _, err := reg.DependencyOrder(); err != nil {
		fmt.Fprintln(w, color.RedString("✗ write order unresolved"))
		return err
	}

	var derived, encrypted, joins int
	for _, class := range reg.Classes() {
		meta := reg.MustGet(class)
		derived += len(meta.ComputedAttributes())
		encrypted += len(meta.EncryptedFields())
		joins += len(meta.JoinTables())
	}
	fmt.Fprintf(w, "%s %d classes, %d derived attributes, %d encrypted fields, %d join tables\n",
		color.GreenString("✓"), len(reg.Classes()), derived, encrypted, joins)
	return nil
}
