package main

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/ehr/hospital-admin/internal/domain/billing"
	"github.com/ehr/hospital-admin/internal/domain/lifecycle"
	"github.com/ehr/hospital-admin/internal/domain/reasoncapture"
	"github.com/ehr/hospital-admin/internal/domain/transition"
)

func actionsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "actions <entity> <status>",
		Short: "List the actions the role may take from a status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			entity, err := lifecycle.ParseEntityType(args[0])
			if err != nil {
				return err
			}
			status, err := lifecycle.ParseStatus(entity, args[1])
			if err != nil {
				return err
			}
			for _, action := range lifecycle.ListAvailableActions(entity, status, a.role) {
				rule, _ := lifecycle.Requirement(entity, status, a.role, action)
				line := string(action)
				if rule.RequiresReason {
					line += "\treason required"
				}
				fmt.Fprintln(a.out, line)
			}
			return nil
		},
	}
}

// appointmentActions maps subcommand names to actions.
var appointmentActions = []struct {
	use    string
	action lifecycle.Action
}{
	{"confirm", lifecycle.ActionConfirm},
	{"check-in", lifecycle.ActionCheckIn},
	{"start", lifecycle.ActionStart},
	{"complete", lifecycle.ActionComplete},
	{"no-show", lifecycle.ActionNoShow},
	{"cancel", lifecycle.ActionCancel},
}

func appointmentCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "appointment",
		Short: "Inspect and transition appointments",
	}
	cmd.AddCommand(getCmd(a, lifecycle.EntityAppointment))
	for _, sub := range appointmentActions {
		cmd.AddCommand(transitionCmd(a, lifecycle.EntityAppointment, sub.use, sub.action))
	}
	return cmd
}

func invoiceCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invoice",
		Short: "Inspect, preview and transition invoices",
	}
	cmd.AddCommand(getCmd(a, lifecycle.EntityInvoice))
	cmd.AddCommand(previewCmd(a))
	cmd.AddCommand(payCmd(a))
	cmd.AddCommand(transitionCmd(a, lifecycle.EntityInvoice, "cancel", lifecycle.ActionCancel))
	cmd.AddCommand(transitionCmd(a, lifecycle.EntityInvoice, "write-off", lifecycle.ActionWriteOff))
	return cmd
}

func getCmd(a *app, entity lifecycle.EntityType) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show the " + string(entity) + " and the actions available to the role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			x, _, _, err := a.executor()
			if err != nil {
				return err
			}
			ref := transition.Ref{Type: entity, ID: args[0]}
			e, err := x.Load(cmd.Context(), ref)
			if err != nil {
				return err
			}
			available, err := x.Available(ref, a.role)
			if err != nil {
				return err
			}
			return a.print(struct {
				Entity    transition.Entity `json:"entity"`
				Available []string          `json:"availableActions"`
			}{e, available.Strings()})
		},
	}
}

func transitionCmd(a *app, entity lifecycle.EntityType, use string, action lifecycle.Action) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " <id>",
		Short: "Apply " + string(action) + " to the " + string(entity),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reason, _ := cmd.Flags().GetString("reason")
			return a.runAction(cmd.Context(), transition.Ref{Type: entity, ID: args[0]}, action, reason, nil)
		},
	}
	cmd.Flags().String("reason", "", "Reason, when the action requires one (prompted otherwise)")
	return cmd
}

func payCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pay <id>",
		Short: "Record a payment against the invoice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, _ := cmd.Flags().GetString("amount")
			method, _ := cmd.Flags().GetString("method")
			reference, _ := cmd.Flags().GetString("reference")
			notes, _ := cmd.Flags().GetString("notes")

			amt, err := decimal.NewFromString(amount)
			if err != nil {
				return lifecycle.FieldValidation("amount", "amount must be a number")
			}
			pm, err := billing.ParsePaymentMethod(method)
			if err != nil {
				return lifecycle.FieldValidation("paymentMethod", err.Error())
			}
			payment := &billing.PaymentRequest{Amount: amt, PaymentMethod: pm, ReferenceNumber: reference, Notes: notes}
			ref := transition.Ref{Type: lifecycle.EntityInvoice, ID: args[0]}
			return a.runAction(cmd.Context(), ref, lifecycle.ActionRecordPayment, "", payment)
		},
	}
	cmd.Flags().String("amount", "", "Amount paid")
	cmd.Flags().String("method", string(billing.MethodCash), "Payment method")
	cmd.Flags().String("reference", "", "Reference number")
	cmd.Flags().String("notes", "", "Notes")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func previewCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Compute invoice totals on the service without creating anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, _ := cmd.Flags().GetStringArray("item")
			discount, _ := cmd.Flags().GetString("discount")
			items := make([]billing.LineItem, 0, len(raw))
			for _, r := range raw {
				item, err := parseLineItem(r)
				if err != nil {
					return err
				}
				items = append(items, item)
			}
			pct, err := decimal.NewFromString(discount)
			if err != nil {
				return lifecycle.FieldValidation("discountPercent", "discount must be a number")
			}
			// local check first; the service stays authoritative
			if _, err := billing.Derive(items, pct, decimal.Zero); err != nil {
				return err
			}
			_, _, client, err := a.executor()
			if err != nil {
				return err
			}
			p, err := client.Preview(cmd.Context(), billing.PreviewRequest{LineItems: items, DiscountPercent: pct})
			if err != nil {
				return err
			}
			return a.print(p)
		},
	}
	cmd.Flags().StringArray("item", nil, "Line item as CODE:description:quantity:unitPrice (repeatable)")
	cmd.Flags().String("discount", "0", "Discount percent")
	return cmd
}

func parseLineItem(s string) (billing.LineItem, error) {
	parts := strings.SplitN(s, ":", 4)
	if len(parts) != 4 {
		return billing.LineItem{}, lifecycle.FieldValidation("item", fmt.Sprintf("line item %q must be CODE:description:quantity:unitPrice", s))
	}
	qty, err := strconv.Atoi(parts[2])
	if err != nil {
		return billing.LineItem{}, lifecycle.FieldValidation("quantity", fmt.Sprintf("quantity %q is not a whole number", parts[2]))
	}
	price, err := decimal.NewFromString(parts[3])
	if err != nil {
		return billing.LineItem{}, lifecycle.FieldValidation("unitPrice", fmt.Sprintf("unit price %q is not a number", parts[3]))
	}
	return billing.LineItem{ServiceCode: parts[0], Description: parts[1], Quantity: qty, UnitPrice: price}, nil
}

// runAction loads ref, then drives one Flow. A missing reason is read from
// the input stream.
func (a *app) runAction(ctx context.Context, ref transition.Ref, action lifecycle.Action, reason string, payment *billing.PaymentRequest) error {
	x, views, _, err := a.executor()
	if err != nil {
		return err
	}
	e, err := x.Load(ctx, ref)
	if err != nil {
		return err
	}
	views.Put(ref.String(), []transition.Ref{ref}, e)

	flow := transition.NewFlow(x, ref, a.role)
	res, err := flow.Begin(ctx, action, payment)
	if err != nil {
		return err
	}
	if flow.State() == reasoncapture.PromptingReason {
		if strings.TrimSpace(reason) == "" {
			reason = a.prompt(fmt.Sprintf("Reason for %s: ", strings.ToLower(string(action))))
		}
		if err := flow.SetReason(reason); err != nil {
			return err
		}
		if res, err = flow.Submit(ctx); err != nil {
			return err
		}
	}
	if _, fresh, ok := views.Get(ref.String()); ok && !fresh {
		a.logger.Debug().Str("ref", ref.String()).Msg("detail view invalidated")
	}
	return a.print(struct {
		From   lifecycle.Status  `json:"from"`
		To     lifecycle.Status  `json:"to"`
		Entity transition.Entity `json:"entity"`
	}{res.From, res.To, res.Entity})
}

func (a *app) prompt(label string) string {
	fmt.Fprint(a.errOut, label)
	line, _ := bufio.NewReader(a.in).ReadString('\n')
	return strings.TrimSpace(line)
}
