package main

import (
	"github.com/spf13/cobra"

	"github.com/kazu-apps/carenote-sync/internal/entitlement"
)

type entitlementView struct {
	ProductID        string `json:"product_id"`
	Active           bool   `json:"active"`
	ExpiryTimeMillis int64  `json:"expiry_time_millis"`
	AutoRenewing     bool   `json:"auto_renewing"`
	Replayed         bool   `json:"replayed"`
}

func newVerifyCommand(opts *rootOptions) *cobra.Command {
	var token, product string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify a purchase token and record the entitlement",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			rc, err := a.dialRemote()
			if err != nil {
				return err
			}
			defer rc.Close()

			v := entitlement.New(a.store.Ledger(), rc, a.log, entitlement.WithRetry(a.cfg.RetryPolicy()))
			out, err := v.Verify(ctx, token, product)
			if err != nil {
				return err
			}
			e := out.Entitlement
			return a.printJSON(entitlementView{
				ProductID:        e.ProductID,
				Active:           e.IsActive,
				ExpiryTimeMillis: e.ExpiryTimeMillis,
				AutoRenewing:     e.AutoRenewing,
				Replayed:         out.Replayed,
			})
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "purchase token")
	cmd.Flags().StringVar(&product, "product", "", "product id")
	_ = cmd.MarkFlagRequired("token")
	_ = cmd.MarkFlagRequired("product")
	return cmd
}
