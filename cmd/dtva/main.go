// Command dtva es el cliente HTTP del API de validez.
package main

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func envOr(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		baseURL = envOr("DTVA_URL", "http://localhost:8080")
		apiKey  = envOr("DTVA_ADMIN_KEY", "")
		out     = envOr("DTVA_OUT", "text")
		timeout = 30 * time.Second
	)
	cl := &client{}

	root := &cobra.Command{
		Use:           "dtva",
		Short:         "Cliente del API de validez de sesiones",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if out != "json" && out != "text" {
				return fmt.Errorf("invalid --out %q (json|text)", out)
			}
			cl.BaseURL, cl.APIKey, cl.OutFormat = baseURL, apiKey, out
			cl.HTTP = &http.Client{Timeout: timeout}
			cl.Out = cmd.OutOrStdout()
			return nil
		},
	}
	root.PersistentFlags().StringVar(&baseURL, "url", baseURL, "URL base del API (env DTVA_URL)")
	root.PersistentFlags().StringVar(&apiKey, "admin-api-key", apiKey, "API key para /v1/cluster (env DTVA_ADMIN_KEY)")
	root.PersistentFlags().StringVar(&out, "out", out, "Formato de salida: json|text")
	root.PersistentFlags().DurationVar(&timeout, "timeout", timeout, "Timeout por request")

	root.AddCommand(issuersCmd(cl), validityCmd(cl), clusterCmd(cl))
	return root
}

func issuersCmd(cl *client) *cobra.Command {
	cmd := &cobra.Command{Use: "issuers", Short: "Issuers registrados"}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "Lista los issuers en orden de registro",
			Args:  cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				return cl.call(http.MethodGet, "/v1/issuers", nil)
			},
		},
		&cobra.Command{
			Use:   "register <name>",
			Short: "Registra un issuer para este participante",
			Args:  cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				return cl.call(http.MethodPost, "/v1/issuers", map[string]string{"iss": args[0]})
			},
		},
	)
	return cmd
}

func validityCmd(cl *client) *cobra.Command {
	cmd := &cobra.Command{Use: "validity", Short: "Session identifiers"}

	var (
		iss      string
		ttl      time.Duration
		idle     time.Duration
		byIssuer string
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Crea una clave de validez y devuelve su sid",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			if iss == "" {
				return fmt.Errorf("--iss is required")
			}
			if ttl <= 0 {
				return fmt.Errorf("--ttl must be positive")
			}
			body := map[string]any{
				"iss":  iss,
				"sexp": time.Now().Add(ttl).Unix(),
			}
			if idle > 0 {
				body["interactivity_timeout"] = int64(idle / time.Second)
			}
			return cl.call(http.MethodPost, "/v1/validity", body)
		},
	}
	create.Flags().StringVar(&iss, "iss", "", "Nombre del issuer")
	create.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Vida máxima (hard expiry = ahora + ttl)")
	create.Flags().DurationVar(&idle, "idle", 0, "Timeout de interactividad (0 = sin timeout)")

	get := &cobra.Command{
		Use:   "get <sid>",
		Short: "Muestra la vista de un sid",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return cl.call(http.MethodGet, "/v1/validity/"+url.PathEscape(args[0]), nil)
		},
	}
	touch := &cobra.Command{
		Use:   "touch <sid>",
		Short: "Envía una señal de interactividad",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return cl.call(http.MethodPost, "/v1/validity/"+url.PathEscape(args[0]), nil)
		},
	}
	invalidate := &cobra.Command{
		Use:   "invalidate <sid>",
		Short: "Invalida un sid",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if byIssuer != "" {
				q := url.Values{"sid": {args[0]}, "iss": {byIssuer}}
				return cl.call(http.MethodDelete, "/v1/validity?"+q.Encode(), nil)
			}
			return cl.call(http.MethodDelete, "/v1/validity/"+url.PathEscape(args[0]), nil)
		},
	}
	invalidate.Flags().StringVar(&byIssuer, "iss", "", "Verifica que el sid sea de este issuer")

	cmd.AddCommand(create, get, touch, invalidate)
	return cmd
}

func clusterCmd(cl *client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cluster",
		Short: "Administración del cluster Raft (requiere admin key)",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cmd.Root().PersistentPreRunE(cmd, args); err != nil {
				return err
			}
			if cl.APIKey == "" {
				return fmt.Errorf("missing admin key (flag --admin-api-key or env DTVA_ADMIN_KEY)")
			}
			return nil
		},
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "nodes",
			Short: "Lista los servidores de la configuración Raft",
			Args:  cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				return cl.call(http.MethodGet, "/v1/cluster/nodes", nil)
			},
		},
		&cobra.Command{
			Use:   "stats",
			Short: "Estado Raft del nodo",
			Args:  cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				return cl.call(http.MethodGet, "/v1/cluster/stats", nil)
			},
		},
		&cobra.Command{
			Use:   "add <id> <raft-addr>",
			Short: "Agrega un voter",
			Args:  cobra.ExactArgs(2),
			RunE: func(_ *cobra.Command, args []string) error {
				return cl.call(http.MethodPost, "/v1/cluster/nodes", map[string]string{"id": args[0], "address": args[1]})
			},
		},
		&cobra.Command{
			Use:   "snapshot",
			Short: "Fuerza un snapshot Raft en el nodo",
			Args:  cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				return cl.call(http.MethodPost, "/v1/cluster/snapshot", nil)
			},
		},
		&cobra.Command{
			Use:   "remove <id>",
			Short: "Quita un servidor",
			Args:  cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				return cl.call(http.MethodDelete, "/v1/cluster/nodes/"+url.PathEscape(args[0]), nil)
			},
		},
	)
	return cmd
}
