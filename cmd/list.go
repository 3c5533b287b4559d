package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"rterm/pkg/output"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List known terminals",
	Long: `List the terminals attached from this machine. Entries are recorded when a
terminal starts and stay until they are forgotten, so a listed terminal may
no longer exist on the server.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.GetFormatFromCmd(cmd)
		if err != nil {
			return err
		}
		formatter := output.New(format)
		formatter.SetWriter(cmd.OutOrStdout())

		registry, err := openRegistry()
		if err != nil {
			return err
		}
		entries := registry.List()

		if !formatter.IsText() {
			return formatter.Output(entries)
		}

		if len(entries) == 0 {
			fmt.Fprintln(formatter.Writer(), "No terminals. Run 'rterm attach' to start one.")
			return nil
		}

		w := tabwriter.NewWriter(formatter.Writer(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "#\tCAPTION\tHANDLE\tTITLE\tLAST ATTACHED")
		for _, e := range entries {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
				e.Sequence, e.Caption, e.Handle, e.Title, e.LastAttached.Local().Format("2006-01-02 15:04:05"))
		}
		return w.Flush()
	},
}

var forgetCmd = &cobra.Command{
	Use:   "forget <caption-or-handle>",
	Short: "Remove a terminal from the local list",
	Long: `Remove a terminal from the local list. The remote process is not touched;
attach and press Ctrl+] then 'k' to terminate it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := openRegistry()
		if err != nil {
			return err
		}

		entry, ok := registry.Remove(args[0])
		if !ok {
			return fmt.Errorf("no terminal named %q", args[0])
		}
		if err := registry.Save(); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Forgot %s (%s)\n", entry.Caption, entry.Handle)
		return nil
	},
}

func init() {
	output.AddFormatFlag(listCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(forgetCmd)
}
