package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"syscall"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	"github.com/Strob0t/TriggerGate/internal/domain/approval"
	"github.com/Strob0t/TriggerGate/internal/port/audit"
)

// runAdmin dispatches admin subcommands against a running gateway's
// operator API.
func runAdmin(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp()
		return nil
	}

	switch args[0] {
	case "list-approvals":
		return runAdminListApprovals(args[1:])
	case "decide":
		return runAdminDecide(args[1:])
	case "audit":
		return runAdminAudit(args[1:])
	default:
		printAdminHelp()
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminHelp() {
	fmt.Fprintf(os.Stderr, `Usage: triggergate admin <command> [options]

Commands:
  list-approvals   List pending (or, with --archived, resolved) approvals
  decide           Approve or reject a pending approval
  audit            Query the audit trail
  help             Show this help message

The operator token is read from TRIGGERGATE_TOKEN or prompted for.

Examples:
  triggergate admin list-approvals
  triggergate admin decide --id 4fam2 --decision approve --note "checked the diff"
  triggergate admin audit --source slack --outcome block --limit 20
`)
}

// adminClient talks to the operator API with a bearer token.
type adminClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newAdminClient(fs *flag.FlagSet) (*adminClient, error) {
	url := fs.Lookup("url").Value.String()
	token := os.Getenv("TRIGGERGATE_TOKEN")
	if token == "" {
		var err error
		token, err = promptToken("Operator token: ")
		if err != nil {
			return nil, fmt.Errorf("read token: %w", err)
		}
	}
	return &adminClient{
		baseURL: url,
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}, nil
}

func (c *adminClient) do(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("%s: %s", resp.Status, apiErr.Error)
		}
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func adminFlags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.String("url", "http://localhost:8080", "gateway base URL")
	return fs
}

func runAdminListApprovals(args []string) error {
	fs := adminFlags("list-approvals")
	archived := fs.Bool("archived", false, "list resolved approvals instead of pending ones")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := newAdminClient(fs)
	if err != nil {
		return err
	}

	path := "/api/v1/approvals"
	if *archived {
		path += "?state=archived"
	}

	var resp struct {
		Approvals []approval.Request `json:"approvals"`
		Count     int                `json:"count"`
	}
	if err := client.do(http.MethodGet, path, nil, &resp); err != nil {
		return err
	}

	if resp.Count == 0 {
		fmt.Println("No approvals found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTATUS\tSOURCE\tREQUESTER\tACTION\tTARGET\tEXPIRES\tTEXT")
	for i := range resp.Approvals {
		r := &resp.Approvals[i]
		source := ""
		text := ""
		if r.Message != nil {
			source = r.Message.Source
			text = truncate(r.Message.Text, 48)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Status, source, r.Requester, r.Action,
			r.Target.String(), r.ExpiresAt.Format(time.RFC3339), text)
	}
	return w.Flush()
}

func runAdminDecide(args []string) error {
	fs := adminFlags("decide")
	id := fs.String("id", "", "approval ID (required)")
	decision := fs.String("decision", "", `"approve" or "reject" (required)`)
	note := fs.String("note", "", "optional note recorded with the decision")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *id == "" {
		return fmt.Errorf("--id is required")
	}
	if *decision != "approve" && *decision != "reject" {
		return fmt.Errorf(`--decision must be "approve" or "reject"`)
	}

	client, err := newAdminClient(fs)
	if err != nil {
		return err
	}

	var resolved approval.Request
	body := map[string]string{"decision": *decision, "note": *note}
	if err := client.do(http.MethodPost, "/api/v1/approvals/"+*id+"/decision", body, &resolved); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Approval %s is now %s\n", resolved.ID, resolved.Status)
	return nil
}

func runAdminAudit(args []string) error {
	fs := adminFlags("audit")
	source := fs.String("source", "", "filter by source type")
	outcome := fs.String("outcome", "", "filter by outcome (allow, approve, block, drop)")
	since := fs.String("since", "", "only entries after this RFC 3339 timestamp")
	limit := fs.Int("limit", 50, "maximum entries")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := newAdminClient(fs)
	if err != nil {
		return err
	}

	path := fmt.Sprintf("/api/v1/audit?limit=%d", *limit)
	if *source != "" {
		path += "&source=" + *source
	}
	if *outcome != "" {
		path += "&outcome=" + *outcome
	}
	if *since != "" {
		path += "&since=" + *since
	}

	var resp struct {
		Entries []audit.Entry `json:"entries"`
		Count   int           `json:"count"`
	}
	if err := client.do(http.MethodGet, path, nil, &resp); err != nil {
		return err
	}

	if resp.Count == 0 {
		fmt.Println("No audit entries found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TIME\tSOURCE\tUSER\tOUTCOME\tACTION\tTARGET\tREASON")
	for i := range resp.Entries {
		e := &resp.Entries[i]
		target := ""
		if e.TargetName != "" {
			target = e.TargetKind + ":" + e.TargetName
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Time.Format(time.RFC3339), e.Source, e.UserID,
			e.Outcome, e.ActionClass, target, truncate(e.Reason, 60))
	}
	return w.Flush()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// promptToken reads the operator token from the terminal without echoing.
func promptToken(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(syscall.Stdin)) //nolint:unconvert // int conversion needed on some platforms
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
