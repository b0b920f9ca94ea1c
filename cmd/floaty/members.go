package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(membersCmd)
	membersCmd.Flags().String("addr", "127.0.0.1:8080", "Status API address of a running floaty node")
}

var membersCmd = &cobra.Command{
	Use:   "members",
	Short: "List the peer table of a running floaty node",
	RunE:  runMembers,
}

type memberView struct {
	ID       int    `json:"id"`
	Status   string `json:"status"`
	Sequence int    `json:"sequence"`
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
}

func runMembers(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")

	resp, err := http.Get(fmt.Sprintf("http://%s/members", addr))
	if err != nil {
		return fmt.Errorf("query %s: %w", addr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("query %s: status %d", addr, resp.StatusCode)
	}

	var body struct {
		Members []memberView `json:"members"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	if len(body.Members) == 0 {
		fmt.Fprintln(os.Stdout, "No members.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "Members (%d):\n", len(body.Members))
	for _, m := range body.Members {
		fmt.Fprintf(os.Stdout, "  • %d  %-8s seq=%d  %s:%d\n", m.ID, m.Status, m.Sequence, m.Host, m.Port)
	}
	return nil
}
