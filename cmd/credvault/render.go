package main

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ericfisherdev/credvault/internal/application"
	"github.com/ericfisherdev/credvault/internal/domain/provider"
)

// render prints v as JSON when --json is set, otherwise through fn.
func render[T any](flags *globalFlags, w io.Writer, v T, fn func(io.Writer, T)) error {
	if flags.json {
		return writeJSON(w, v)
	}
	fn(w, v)
	return nil
}

// renderResult is render for controller results: a failed outcome becomes
// the command's error.
func renderResult[T any](flags *globalFlags, w io.Writer, v T, outcome application.Outcome, fn func(io.Writer, T)) error {
	if !outcome.Success {
		if outcome.Error == nil {
			return fmt.Errorf("operation failed")
		}
		return fmt.Errorf("%s: %s", outcome.Error.Code, outcome.Error.Message)
	}
	return render(flags, w, v, fn)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}

func newTable(w io.Writer) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.Style().Options.SeparateRows = false
	return tw
}

func displayScope(s string) string {
	if s == "" {
		return "(personal)"
	}
	return s
}

func yesNo(b bool, yes, no string) string {
	if b {
		return text.FgGreen.Sprint(yes)
	}
	return text.FgRed.Sprint(no)
}

func renderProviders(w io.Writer, providers []application.ProviderInfo) {
	tw := newTable(w)
	tw.AppendHeader(table.Row{"ID", "Name", "Kind", "Env var", "Format"})
	for _, p := range providers {
		tw.AppendRow(table.Row{p.ID, p.Name, p.Kind, p.EnvVar, p.FormatHint})
	}
	tw.Render()
}

func renderCredential(w io.Writer, r *application.CredentialResult) {
	tw := newTable(w)
	tw.AppendRows([]table.Row{
		{"Provider", r.Provider},
		{"Scope", displayScope(r.Scope)},
		{"Kind", r.ScopeKind},
		{"Credential", r.Masked},
		{"Format", yesNo(r.Valid, "valid", "invalid")},
		{"Created", r.CreatedAt},
		{"Updated", r.UpdatedAt},
	})
	for _, k := range slices.Sorted(maps.Keys(r.Metadata)) {
		tw.AppendRow(table.Row{"meta:" + k, r.Metadata[k]})
	}
	tw.Render()
}

func renderCredentialList(w io.Writer, r *application.CredentialListResult) {
	if len(r.Credentials) == 0 {
		fmt.Fprintln(w, "No credentials stored.")
		return
	}
	tw := newTable(w)
	tw.AppendHeader(table.Row{"Provider", "Scope", "Kind", "Updated"})
	for _, c := range r.Credentials {
		tw.AppendRow(table.Row{c.Provider, displayScope(c.Scope), c.ScopeKind, c.UpdatedAt})
	}
	tw.AppendFooter(table.Row{"", "", "Total", len(r.Credentials)})
	tw.Render()
}

func renderProjects(w io.Writer, r *application.ProjectsResult) {
	if len(r.Projects) == 0 {
		fmt.Fprintln(w, "No projects.")
		return
	}
	tw := newTable(w)
	tw.AppendHeader(table.Row{"Project", "Credentials", "Environments", "Providers"})
	for _, p := range r.Projects {
		tw.AppendRow(table.Row{p.Name, p.CredentialCount,
			strings.Join(p.Environments, ", "), strings.Join(p.Providers, ", ")})
	}
	tw.Render()
}

func renderClone(w io.Writer, r *application.CloneProjectResult) {
	if r.Message != "" {
		fmt.Fprintln(w, r.Message)
	}
	if len(r.Items) > 0 {
		tw := newTable(w)
		tw.AppendHeader(table.Row{"Provider", "Environment", "Status"})
		for _, it := range r.Items {
			status := text.FgGreen.Sprint("cloned")
			switch {
			case !it.Cloned:
				status = text.FgRed.Sprint("failed: " + it.Error)
			case it.Overwritten:
				status = text.FgYellow.Sprint("overwritten")
			}
			tw.AppendRow(table.Row{it.Provider, it.Environment, status})
		}
		tw.Render()
	}
	fmt.Fprintf(w, "%s -> %s: %d cloned, %d failed, %d overwritten\n",
		r.SourceProject, r.TargetProject, r.Cloned, r.Failed, r.Overwritten)
	if r.Warning != "" {
		fmt.Fprintln(w, text.FgYellow.Sprint("Warning: "+r.Warning))
	}
}

func renderHeaders(w io.Writer, headers []provider.Header) {
	for _, h := range headers {
		fmt.Fprintf(w, "%s: %s\n", h.Name, h.Value)
	}
}

func renderVerification(w io.Writer, r *application.VerificationResult) {
	tw := newTable(w)
	tw.AppendRows([]table.Row{
		{"Provider", r.Provider},
		{"Scope", displayScope(r.Scope)},
		{"Credential", r.Masked},
		{"Verified", yesNo(r.Verified, "yes", "no")},
	})
	if r.Identity != "" {
		tw.AppendRow(table.Row{"Identity", r.Identity})
	}
	if len(r.Scopes) > 0 {
		tw.AppendRow(table.Row{"Scopes", strings.Join(r.Scopes, ", ")})
	}
	if r.Detail != "" {
		tw.AppendRow(table.Row{"Detail", r.Detail})
	}
	tw.Render()
}

func renderHelp(w io.Writer, h application.ProviderHelp) {
	fmt.Fprintf(w, "%s (%s)\n\n", h.Name, h.ID)
	fmt.Fprintf(w, "  Docs:   %s\n", h.DocsURL)
	fmt.Fprintf(w, "  Tokens: %s\n", h.TokenURL)
	fmt.Fprintf(w, "  Format: %s\n\n", h.FormatHint)
	for i, step := range h.Steps {
		fmt.Fprintf(w, "  %d. %s\n", i+1, step)
	}
	if len(h.ExampleScopes) > 0 {
		fmt.Fprintf(w, "\nExample scopes: %s\n", strings.Join(h.ExampleScopes, ", "))
	}
}

func renderRoles(w io.Writer, roles []application.Role) {
	for _, r := range roles {
		fmt.Fprintf(w, "%s (%s): %s\n", r.Name, r.ID, r.Description)
		tw := newTable(w)
		tw.AppendHeader(table.Row{"Provider", "Scope", "Note"})
		for _, s := range r.Layout {
			tw.AppendRow(table.Row{s.Provider, displayScope(s.Scope), s.Note})
		}
		tw.Render()
		fmt.Fprintln(w)
	}
}

func renderSetupSteps(w io.Writer, steps []application.SetupStep) {
	tw := newTable(w)
	tw.AppendHeader(table.Row{"#", "Command", "Token URL"})
	for i, s := range steps {
		tw.AppendRow(table.Row{i + 1, setupCommand(s), s.TokenURL})
	}
	tw.Render()
}

// setupCommand renders a quick-setup step as the credvault invocation that
// performs it.
func setupCommand(s application.SetupStep) string {
	if rest, ok := strings.CutPrefix(s.Scope, "project:"); ok {
		if project, env, hasEnv := strings.Cut(rest, ":"); hasEnv {
			return fmt.Sprintf("credvault set-project %s %s --env %s", s.Provider, project, env)
		}
		return fmt.Sprintf("credvault set-project %s %s", s.Provider, rest)
	}
	if s.Scope == "" {
		return "credvault set " + s.Provider
	}
	return fmt.Sprintf("credvault set %s --scope %s", s.Provider, s.Scope)
}

func renderRotation(w io.Writer, r *application.RotationReport) {
	tw := newTable(w)
	tw.AppendHeader(table.Row{"Scanned", "Rotated", "Skipped", "Conflicts", "Failed"})
	tw.AppendRow(table.Row{r.Scanned, r.Rotated, r.Skipped, r.Conflicts, r.Failed})
	tw.Render()
	for _, f := range r.Failures {
		fmt.Fprintf(w, "  %s %s: %s\n", f.UserID, f.StorageKey, f.Error)
	}
}
