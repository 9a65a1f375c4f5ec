package main

import (
	"encoding/json"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/dtva/internal/codec"
	"github.com/dropDatabas3/dtva/internal/validity"
)

type sidOutput struct {
	HardExpiryAt         string `json:"sexp"`
	IssuerIndex          int    `json:"issuer_index"`
	InteractivityTimeout string `json:"interactivity_timeout"`
	Nonce                int64  `json:"nonce"`
	ConsensusGrace       string `json:"consensus_grace,omitempty"`
	Diagnostic           string `json:"cbor"`
}

func newSidCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sid",
		Short: "Herramientas para session identifiers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "decode <sid>",
		Short: "Decodifica un sid y muestra la clave de validez",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return decodeSid(cmd.OutOrStdout(), args[0])
		},
	})
	return cmd
}

func decodeSid(w io.Writer, raw string) error {
	sid, err := validity.ParseSessionIdentifier(raw)
	if err != nil {
		return err
	}
	k := sid.Key()
	out := sidOutput{
		HardExpiryAt:         k.HardExpiryAt().UTC().Format(time.RFC3339),
		IssuerIndex:          k.IssuerIndex(),
		InteractivityTimeout: k.InteractivityTimeout().String(),
		Nonce:                k.Nonce(),
	}
	if g, ok := sid.ConsensusGrace(); ok {
		out.ConsensusGrace = g.UTC().Format(time.RFC3339)
	}
	if b, err := codec.Marshal(sid); err == nil {
		out.Diagnostic, _ = codec.Diagnose(b)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
