package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ericfisherdev/credvault/internal/adapter/driven/aesgcm"
	"github.com/ericfisherdev/credvault/internal/application"
	"github.com/ericfisherdev/credvault/internal/domain/provider"
)

func newProvidersCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:         "providers",
		Short:       "List supported credential providers",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"vault": "none"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			catalog := application.NewCatalog(provider.Default())
			return render(a.flags, cmd.OutOrStdout(), catalog.Providers(), renderProviders)
		},
	}
}

func newSetCmd(a *app) *cobra.Command {
	var scopeFlag string
	c := &cobra.Command{
		Use:   "set <provider>",
		Short: "Store a credential at a personal, named or project scope",
		Long: strings.TrimSpace(`
Store a credential. The value is read from the terminal without echo, or
from the first line of stdin when stdin is not a terminal. It is never
accepted as a command-line argument.`),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := a.user()
			if err != nil {
				return err
			}
			if err := a.requireKey(); err != nil {
				return err
			}
			secret, err := readSecret(cmd, args[0])
			if err != nil {
				return err
			}

			res, err := a.controller.SetCredential(cmd.Context(), application.SetCredentialArgs{
				UserID: user, Provider: args[0], Scope: scopeFlag, Credential: secret,
			})
			if err != nil {
				return err
			}
			return renderResult(a.flags, cmd.OutOrStdout(), res, res.Outcome, renderCredential)
		},
	}
	c.Flags().StringVarP(&scopeFlag, "scope", "s", "", "Scope: name, project:<p> or project:<p>:<env> (default personal)")
	return c
}

func newSetProjectCmd(a *app) *cobra.Command {
	var env string
	c := &cobra.Command{
		Use:   "set-project <provider> <project>",
		Short: "Store a credential for a project environment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := a.user()
			if err != nil {
				return err
			}
			if err := a.requireKey(); err != nil {
				return err
			}
			secret, err := readSecret(cmd, args[0])
			if err != nil {
				return err
			}

			res, err := a.controller.SetProjectCredential(cmd.Context(), application.SetProjectCredentialArgs{
				UserID: user, Provider: args[0], Project: args[1], Environment: env, Credential: secret,
			})
			if err != nil {
				return err
			}
			return renderResult(a.flags, cmd.OutOrStdout(), res, res.Outcome, renderCredential)
		},
	}
	c.Flags().StringVarP(&env, "env", "e", "", "Environment (default: the project's default environment)")
	return c
}

func newGetCmd(a *app) *cobra.Command {
	var scopeFlag string
	c := &cobra.Command{
		Use:   "get <provider>",
		Short: "Show the masked credential stored at a scope",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := a.user()
			if err != nil {
				return err
			}
			res, err := a.controller.GetCredential(cmd.Context(), application.CredentialRefArgs{
				UserID: user, Provider: args[0], Scope: scopeFlag,
			})
			if err != nil {
				return err
			}
			return renderResult(a.flags, cmd.OutOrStdout(), res, res.Outcome, renderCredential)
		},
	}
	c.Flags().StringVarP(&scopeFlag, "scope", "s", "", "Scope (default personal)")
	return c
}

func newDeleteCmd(a *app) *cobra.Command {
	var scopeFlag string
	c := &cobra.Command{
		Use:   "delete <provider>",
		Short: "Delete the credential stored at a scope",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := a.user()
			if err != nil {
				return err
			}
			res, err := a.controller.DeleteCredential(cmd.Context(), application.CredentialRefArgs{
				UserID: user, Provider: args[0], Scope: scopeFlag,
			})
			if err != nil {
				return err
			}
			return renderResult(a.flags, cmd.OutOrStdout(), res, res.Outcome, func(w io.Writer, r *application.CredentialResult) {
				fmt.Fprintf(w, "Deleted %s credential at scope %s\n", r.Provider, displayScope(r.Scope))
			})
		},
	}
	c.Flags().StringVarP(&scopeFlag, "scope", "s", "", "Scope (default personal)")
	return c
}

func newValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:         "validate <provider>",
		Short:       "Check a credential's format without storing it",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{"vault": "none"},
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := readSecret(cmd, args[0])
			if err != nil {
				return err
			}

			// Validation is pure; it needs the registry only.
			ctrl := application.NewCredentialController(application.NewCredentialManager(nil, nil, nil, nil), nil)
			res := ctrl.ValidateCredential(application.ValidateCredentialArgs{Provider: args[0], Credential: secret})
			return renderResult(a.flags, cmd.OutOrStdout(), res, res.Outcome, func(w io.Writer, r *application.ValidationResult) {
				if r.Valid {
					fmt.Fprintf(w, "Valid %s credential format\n", r.Provider)
					return
				}
				fmt.Fprintf(w, "Invalid %s credential: %s\n", r.Provider, r.Reason)
			})
		},
	}
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored credentials (metadata only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, err := a.user()
			if err != nil {
				return err
			}
			res, err := a.controller.ListCredentials(cmd.Context(), application.UserArgs{UserID: user})
			if err != nil {
				return err
			}
			return renderResult(a.flags, cmd.OutOrStdout(), res, res.Outcome, renderCredentialList)
		},
	}
}

func newProjectsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "projects",
		Short: "List projects with their environments and providers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, err := a.user()
			if err != nil {
				return err
			}
			res, err := a.controller.ListProjects(cmd.Context(), application.UserArgs{UserID: user})
			if err != nil {
				return err
			}
			return renderResult(a.flags, cmd.OutOrStdout(), res, res.Outcome, renderProjects)
		},
	}
}

func newCloneCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clone <source-project> <target-project>",
		Short: "Copy every credential of a project, all environments included",
		Long: strings.TrimSpace(`
Copy every credential of the source project to the target project. Each
credential is re-encrypted for its new location. Existing credentials in the
target project are overwritten and reported.`),
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := a.user()
			if err != nil {
				return err
			}
			if err := a.requireKey(); err != nil {
				return err
			}
			res, err := a.controller.CloneProject(cmd.Context(), application.CloneProjectArgs{
				UserID: user, SourceProject: args[0], TargetProject: args[1],
			})
			if err != nil {
				return err
			}
			return renderResult(a.flags, cmd.OutOrStdout(), res, res.Outcome, renderClone)
		},
	}
}

func newHeadersCmd(a *app) *cobra.Command {
	var (
		scopeFlag string
		reveal    bool
	)
	c := &cobra.Command{
		Use:   "headers <provider>",
		Short: "Show the request headers for a stored credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := a.user()
			if err != nil {
				return err
			}
			headers, err := a.controller.GetAuthHeaders(cmd.Context(), application.CredentialRefArgs{
				UserID: user, Provider: args[0], Scope: scopeFlag,
			})
			if err != nil {
				return err
			}
			if !reveal {
				headers = maskHeaders(headers)
			}
			return render(a.flags, cmd.OutOrStdout(), headers, renderHeaders)
		},
	}
	c.Flags().StringVarP(&scopeFlag, "scope", "s", "", "Scope (default personal)")
	c.Flags().BoolVar(&reveal, "reveal", false, "Print the unmasked credential in header values")
	return c
}

func newVerifyCmd(a *app) *cobra.Command {
	var scopeFlag string
	c := &cobra.Command{
		Use:   "verify <provider>",
		Short: "Check a stored credential against the provider's API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := a.user()
			if err != nil {
				return err
			}
			res, err := a.controller.VerifyCredential(cmd.Context(), application.CredentialRefArgs{
				UserID: user, Provider: args[0], Scope: scopeFlag,
			})
			if err != nil {
				return err
			}
			return renderResult(a.flags, cmd.OutOrStdout(), res, res.Outcome, renderVerification)
		},
	}
	c.Flags().StringVarP(&scopeFlag, "scope", "s", "", "Scope (default personal)")
	return c
}

func newHelpProviderCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:         "help-provider <provider>",
		Short:       "Explain how to obtain and store a provider's credential",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{"vault": "none"},
		RunE: func(cmd *cobra.Command, args []string) error {
			help, err := application.NewCatalog(provider.Default()).Help(args[0])
			if err != nil {
				return err
			}
			return render(a.flags, cmd.OutOrStdout(), help, renderHelp)
		},
	}
}

func newRecommendCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:         "recommend [role]",
		Short:       "Suggest scope layouts for common roles",
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{"vault": "none"},
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog := application.NewCatalog(provider.Default())
			roles := catalog.Roles()
			if len(args) == 1 {
				role, err := catalog.Role(args[0])
				if err != nil {
					return err
				}
				roles = []application.Role{role}
			}
			return render(a.flags, cmd.OutOrStdout(), roles, renderRoles)
		},
	}
}

func newQuickSetupCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:         "quick-setup <role> <project>",
		Short:       "List the credentials to store for a role's project layout",
		Args:        cobra.ExactArgs(2),
		Annotations: map[string]string{"vault": "none"},
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, err := application.NewCatalog(provider.Default()).QuickSetup(args[0], args[1])
			if err != nil {
				return err
			}
			return render(a.flags, cmd.OutOrStdout(), steps, renderSetupSteps)
		},
	}
}

func newRotateKeyCmd(a *app) *cobra.Command {
	var batch int
	c := &cobra.Command{
		Use:   "rotate-key",
		Short: "Re-encrypt every stored credential under the current key",
		Long: strings.TrimSpace(`
Re-encrypt every stored credential, for all users, from
CREDVAULT_PREVIOUS_SECRET_KEY to CREDVAULT_SECRET_KEY. Records already under
the current key are skipped, so an interrupted rotation can be re-run.`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.requireKey(); err != nil {
				return err
			}
			if a.cfg.PreviousSecretKey == "" {
				return errors.New("rotate-key: CREDVAULT_PREVIOUS_SECRET_KEY is not set")
			}
			from, err := aesgcm.NewFromSecret(a.cfg.PreviousSecretKey)
			if err != nil {
				return fmt.Errorf("CREDVAULT_PREVIOUS_SECRET_KEY: %w", err)
			}

			report, err := application.NewKeyRotator(a.store, from, a.cipher, nil).Rotate(cmd.Context(), batch)
			if report != nil {
				if renderErr := render(a.flags, cmd.OutOrStdout(), report, renderRotation); renderErr != nil {
					return renderErr
				}
			}
			if err != nil {
				return err
			}
			if report.Failed > 0 {
				return fmt.Errorf("rotate-key: %d credential(s) could not be re-encrypted", report.Failed)
			}
			return nil
		},
	}
	c.Flags().IntVar(&batch, "batch", application.DefaultRotationBatch, "Records per page")
	return c
}

func newToolCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tool",
		Short: "Run one tool call read as JSON from stdin",
		Long: strings.TrimSpace(`
Read {"tool": "<name>", "args": {...}} from stdin and print the response
envelope {"success": ..., "data": ..., "error": {"code": ..., "message": ...}}.`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env := a.dispatcher.Serve(cmd.Context(), cmd.InOrStdin())
			return writeJSON(cmd.OutOrStdout(), env)
		},
	}
}

// readSecret reads a credential without echo from a terminal, or the first
// line of stdin otherwise.
func readSecret(cmd *cobra.Command, providerID string) (string, error) {
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprintf(cmd.ErrOrStderr(), "Enter %s credential: ", providerID)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("read credential: %w", err)
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read credential: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func maskHeaders(headers []provider.Header) []provider.Header {
	out := make([]provider.Header, len(headers))
	for i, h := range headers {
		out[i] = h
		switch {
		case strings.HasPrefix(h.Value, "Bearer "):
			out[i].Value = "Bearer " + provider.Mask(strings.TrimPrefix(h.Value, "Bearer "), 4)
		case isCredentialHeader(h.Name):
			out[i].Value = provider.Mask(h.Value, 4)
		}
	}
	return out
}

func isCredentialHeader(name string) bool {
	switch strings.ToLower(name) {
	case "private-token", "x-api-key", "x-goog-api-key":
		return true
	}
	return false
}
