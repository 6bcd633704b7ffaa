package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kalambet/advisorhub/internal/advisor"
	"github.com/kalambet/advisorhub/internal/api"
	"github.com/kalambet/advisorhub/internal/config"
	"github.com/kalambet/advisorhub/internal/contactlog"
	"github.com/kalambet/advisorhub/internal/report"
)

var errNoAdvisor = errors.New("advisor name required: pass --advisor or set ADVISORHUB_ADVISOR")

// --- merchants ---

var merchantsCmd = &cobra.Command{
	Use:   "merchants",
	Short: "List the merchant portfolio",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runMerchants(cmd.Context(), client, cmd.OutOrStdout())
	},
}

func runMerchants(ctx context.Context, c *apiClient, w io.Writer) error {
	resp, err := c.get(ctx, "/merchants")
	if err != nil {
		return err
	}
	var list api.MerchantList
	if err := decodeJSON(resp, &list); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MERCHANT\tCUIT\tSALES\tPREVIOUS\tVARIANCE\tSTATUS")
	for _, m := range list.Merchants {
		fmt.Fprintf(tw, "%s\t%d\t%.2f\t%.2f\t%+.2f%%\t%s\n",
			m.Name, m.TaxID, m.MonthlySales, m.PreviousMonthSales, m.Variance,
			colorize(statusColor(m.Status), string(m.Status)))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	s := list.Summary
	if s.VarianceAvailable {
		fmt.Fprintf(w, "\n%d merchants, sales %.2f (%+.2f%% month over month)\n", s.Merchants, s.TotalSales, s.Variance)
	} else {
		fmt.Fprintf(w, "\n%d merchants, sales %.2f\n", s.Merchants, s.TotalSales)
	}
	return nil
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history <merchant>",
	Short: "Show a merchant's dashboard and contact history",
	Long: `Show a merchant's dashboard and contact history, most recent first.

The merchant is given by tax id (CUIT), display label or name.

Examples:
  advisorhub history 30712345678
  advisorhub history "Tienda Alpha"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runHistory(cmd.Context(), client, strings.Join(args, " "), cmd.OutOrStdout())
	},
}

func merchantPath(ref string) string {
	return "/merchants/" + url.PathEscape(ref)
}

func runHistory(ctx context.Context, c *apiClient, ref string, w io.Writer) error {
	resp, err := c.get(ctx, merchantPath(ref))
	if err != nil {
		return err
	}
	var d advisor.Dashboard
	if err := decodeJSON(resp, &d); err != nil {
		return err
	}

	resp, err = c.get(ctx, merchantPath(ref)+"/contacts")
	if err != nil {
		return err
	}
	var hist api.History
	if err := decodeJSON(resp, &hist); err != nil {
		return err
	}

	m := d.Merchant
	fmt.Fprintln(w, colorize(colorBold, d.Label))
	fmt.Fprintf(w, "  Sales %.2f, previous %.2f, variance %+.2f%%, %s\n",
		m.MonthlySales, m.PreviousMonthSales, m.Variance, colorize(statusColor(m.Status), string(m.Status)))
	fmt.Fprintf(w, "  Suggestion: %s\n\n", d.Suggestion)

	if len(hist.Contacts) == 0 {
		fmt.Fprintln(w, "No contacts recorded.")
		return nil
	}
	for _, e := range hist.Contacts {
		fmt.Fprintf(w, "%s  %-8s %-6s %s\n", e.DateString(), e.Channel, e.Priority, e.AdvisorName)
		if e.Summary != "" {
			fmt.Fprintf(w, "    %s\n", e.Summary)
		}
		if e.Commitment != "" {
			fmt.Fprintf(w, "    Commitment: %s\n", e.Commitment)
		}
	}
	return nil
}

// --- log ---

var logCmd = &cobra.Command{
	Use:   "log <merchant>",
	Short: "Record a contact with a merchant",
	Long: `Record a contact with a merchant. Entries are append-only.

Examples:
  advisorhub log 30712345678 --advisor Ana --channel Call --priority High \
    --summary "monthly review" --commitment "send working capital offer"
  ADVISORHUB_ADVISOR=Ana advisorhub log "Bazar Beta" --channel Email`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		flagAdvisor, _ := cmd.Flags().GetString("advisor")
		channel, _ := cmd.Flags().GetString("channel")
		priority, _ := cmd.Flags().GetString("priority")
		summary, _ := cmd.Flags().GetString("summary")
		commitment, _ := cmd.Flags().GetString("commitment")
		date, _ := cmd.Flags().GetString("date")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		advisorName, err := resolveAdvisor(flagAdvisor, cfg)
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		e, err := runLog(cmd.Context(), client, strings.Join(args, " "), api.ContactRequest{
			AdvisorName: advisorName,
			Channel:     channel,
			Priority:    priority,
			Summary:     summary,
			Commitment:  commitment,
			Date:        date,
		})
		if err != nil {
			return err
		}
		printSuccess("Logged contact %s with %s on %s", e.ID, e.MerchantName, e.DateString())
		return nil
	},
}

func init() {
	logCmd.Flags().String("advisor", "", "advisor signing the entry (default $ADVISORHUB_ADVISOR)")
	logCmd.Flags().String("channel", "", "Call, Email, Chat or InPerson")
	logCmd.Flags().String("priority", "", "Low, Medium or High (default Low)")
	logCmd.Flags().String("summary", "", "what was discussed")
	logCmd.Flags().String("commitment", "", "agreed follow-up")
	logCmd.Flags().String("date", "", "contact date as YYYY-MM-DD (default today)")
	logCmd.MarkFlagRequired("channel")
}

// resolveAdvisor applies the advisor name gate: the flag, else the configured name.
func resolveAdvisor(flagValue string, cfg config.Config) (string, error) {
	if name := strings.TrimSpace(flagValue); name != "" {
		return name, nil
	}
	if name := strings.TrimSpace(cfg.Advisor.Name); name != "" {
		return name, nil
	}
	return "", errNoAdvisor
}

func runLog(ctx context.Context, c *apiClient, ref string, req api.ContactRequest) (contactlog.Entry, error) {
	resp, err := c.post(ctx, merchantPath(ref)+"/contacts", req)
	if err != nil {
		return contactlog.Entry{}, err
	}
	var e contactlog.Entry
	if err := decodeJSON(resp, &e); err != nil {
		return contactlog.Entry{}, err
	}
	return e, nil
}

// --- export ---

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Download the full contact log",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")

		f, err := report.ParseFormat(format)
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		var writer io.Writer = cmd.OutOrStdout()
		if output != "" {
			out, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating output file: %w", err)
			}
			defer out.Close()
			writer = out
		}

		if err := runExport(cmd.Context(), client, f, writer); err != nil {
			return err
		}
		if output != "" {
			printSuccess("Contact log exported to %s", output)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().String("format", "csv", "csv, jsonl or pdf")
	exportCmd.Flags().StringP("output", "o", "", "write to file instead of stdout")
}

func runExport(ctx context.Context, c *apiClient, f report.Format, w io.Writer) error {
	resp, err := c.get(ctx, "/contacts/export?format="+string(f))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return err
	}
	_, err = io.Copy(w, resp.Body)
	return err
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value. Valid keys: " + strings.Join(config.ValidKeys(), ", "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
