package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/colab/internal/config"
	"github.com/kalambet/colab/internal/resume"
)

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// --- profile ---

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage student profiles",
}

type profileBody struct {
	Email          string   `json:"email"`
	Name           string   `json:"name"`
	PrimaryRole    string   `json:"primary_role"`
	Skills         string   `json:"skills"`
	Goals          string   `json:"goals"`
	Availability   []string `json:"availability"`
	GitHubUsername string   `json:"github_username"`
}

var profileSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Create or replace a profile",
	Long: `Create or replace a profile.

Examples:
  colab profile set --email ana@uni.edu --name Ana --role Developer \
    --skills "Go, Postgres, gRPC" --availability weekends,evenings --github ana`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var b profileBody
		b.Email, _ = cmd.Flags().GetString("email")
		b.Name, _ = cmd.Flags().GetString("name")
		b.PrimaryRole, _ = cmd.Flags().GetString("role")
		b.Skills, _ = cmd.Flags().GetString("skills")
		b.Goals, _ = cmd.Flags().GetString("goals")
		b.GitHubUsername, _ = cmd.Flags().GetString("github")
		slots, _ := cmd.Flags().GetString("availability")
		b.Availability = splitList(slots)

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		if err := putProfile(cmd.Context(), client, b); err != nil {
			return err
		}
		printSuccess("Saved profile %s", b.Email)
		return nil
	},
}

func putProfile(ctx context.Context, c *apiClient, b profileBody) error {
	resp, err := c.put(ctx, "/profiles", b)
	if err != nil {
		return err
	}
	return decodeJSON(resp, nil)
}

var profileShowCmd = &cobra.Command{
	Use:   "show <email>",
	Short: "Show a profile with its reliability and GitHub summary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/profiles/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var view any
		if err := decodeJSON(resp, &view); err != nil {
			return err
		}
		return printJSON(os.Stdout, view)
	},
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return listProfiles(cmd.Context(), client, os.Stdout)
	},
}

func listProfiles(ctx context.Context, c *apiClient, w io.Writer) error {
	resp, err := c.get(ctx, "/profiles")
	if err != nil {
		return err
	}
	var profiles []profileBody
	if err := decodeJSON(resp, &profiles); err != nil {
		return err
	}
	if len(profiles) == 0 {
		fmt.Fprintln(w, "No profiles.")
		return nil
	}
	for _, p := range profiles {
		fmt.Fprintf(w, "  %-30s %-20s %s\n", p.Email, p.Name, p.PrimaryRole)
	}
	return nil
}

var profileImportResumeCmd = &cobra.Command{
	Use:   "import-resume <email> <file.pdf>",
	Short: "Replace a profile's skills with the text of a PDF resume",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := resume.ExtractFile(args[1])
		if err != nil {
			return err
		}
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		if err := importResume(cmd.Context(), client, args[0], text); err != nil {
			return err
		}
		printSuccess("Imported %d characters of skills for %s", len([]rune(text)), args[0])
		return nil
	},
}

// importResume fetches the current profile and writes it back with the
// extracted resume text as its skills, so it is re-vectorized.
func importResume(ctx context.Context, c *apiClient, email, skills string) error {
	resp, err := c.get(ctx, "/profiles/"+url.PathEscape(email))
	if err != nil {
		return err
	}
	var current struct {
		profileBody
		Availability struct {
			Weekdays bool `json:"weekdays"`
			Weekends bool `json:"weekends"`
			Evenings bool `json:"evenings"`
		} `json:"availability"`
	}
	if err := decodeJSON(resp, &current); err != nil {
		return err
	}

	b := current.profileBody
	b.Skills = skills
	b.Availability = nil
	if current.Availability.Weekdays {
		b.Availability = append(b.Availability, "weekdays")
	}
	if current.Availability.Weekends {
		b.Availability = append(b.Availability, "weekends")
	}
	if current.Availability.Evenings {
		b.Availability = append(b.Availability, "evenings")
	}
	return putProfile(ctx, c, b)
}

func init() {
	f := profileSetCmd.Flags()
	f.String("email", "", "profile email (required)")
	f.String("name", "", "display name (required)")
	f.String("role", "", "primary role: Developer, Designer, Project Manager, Researcher, Presenter")
	f.String("skills", "", "free-text skills")
	f.String("goals", "", "free-text goals")
	f.String("availability", "", "comma-separated slots: weekdays, weekends, evenings")
	f.String("github", "", "GitHub username")
	profileSetCmd.MarkFlagRequired("email")
	profileSetCmd.MarkFlagRequired("name")
	profileSetCmd.MarkFlagRequired("role")

	profileCmd.AddCommand(profileSetCmd, profileShowCmd, profileListCmd, profileImportResumeCmd)
}

// --- project ---

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage the project board",
}

var projectCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Post a project with the roles it needs",
	RunE: func(cmd *cobra.Command, args []string) error {
		leader, _ := cmd.Flags().GetString("leader")
		title, _ := cmd.Flags().GetString("title")
		desc, _ := cmd.Flags().GetString("description")
		roles, _ := cmd.Flags().GetString("roles")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/projects", map[string]any{
			"leader_email": leader,
			"title":        title,
			"description":  desc,
			"roles":        splitList(roles),
		})
		if err != nil {
			return err
		}
		var p struct {
			ID string `json:"id"`
		}
		if err := decodeJSON(resp, &p); err != nil {
			return err
		}
		printSuccess("Created project %s", p.ID)
		return nil
	},
}

type boardEntry struct {
	Project struct {
		ID     string `json:"id"`
		Title  string `json:"title"`
		Status string `json:"status"`
		Roles  []struct {
			ID       string `json:"id"`
			RoleName string `json:"role_name"`
			Status   string `json:"status"`
		} `json:"roles"`
	} `json:"project"`
	LeaderName string `json:"leader_name"`
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the project board",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return showBoard(cmd.Context(), client, os.Stdout)
	},
}

func showBoard(ctx context.Context, c *apiClient, w io.Writer) error {
	resp, err := c.get(ctx, "/projects")
	if err != nil {
		return err
	}
	var board []boardEntry
	if err := decodeJSON(resp, &board); err != nil {
		return err
	}
	if len(board) == 0 {
		fmt.Fprintln(w, "The board is empty.")
		return nil
	}
	for _, e := range board {
		fmt.Fprintf(w, "%s %s (led by %s) [%s]\n",
			colorize(colorCyan, e.Project.ID), colorize(colorBold, e.Project.Title), e.LeaderName, e.Project.Status)
		for _, r := range e.Project.Roles {
			fmt.Fprintf(w, "   - %-16s %-6s %s\n", r.RoleName, r.Status, r.ID)
		}
	}
	return nil
}

var projectShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a project as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/projects/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var p any
		if err := decodeJSON(resp, &p); err != nil {
			return err
		}
		return printJSON(os.Stdout, p)
	},
}

var projectRoleCmd = &cobra.Command{
	Use:   "role <role-id> <open|filled>",
	Short: "Mark a project role open or filled",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.patch(cmd.Context(), "/roles/"+url.PathEscape(args[0]), map[string]string{"status": args[1]})
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Role %s is now %s", args[0], args[1])
		return nil
	},
}

func init() {
	f := projectCreateCmd.Flags()
	f.String("leader", "", "leader email (required)")
	f.String("title", "", "project title (required)")
	f.String("description", "", "project description (required)")
	f.String("roles", "", "comma-separated roles needed (required)")
	for _, name := range []string{"leader", "title", "description", "roles"} {
		projectCreateCmd.MarkFlagRequired(name)
	}

	projectCmd.AddCommand(projectCreateCmd, projectListCmd, projectShowCmd, projectRoleCmd)
}

// --- matching ---

var peersCmd = &cobra.Command{
	Use:   "peers <email>",
	Short: "Find study peers for a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return findPeers(cmd.Context(), client, os.Stdout, args[0])
	},
}

func findPeers(ctx context.Context, c *apiClient, w io.Writer, email string) error {
	resp, err := c.get(ctx, "/profiles/"+url.PathEscape(email)+"/peers")
	if err != nil {
		return err
	}
	var matches []matchView
	if err := decodeJSON(resp, &matches); err != nil {
		return err
	}
	printMatches(w, matches)
	return nil
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Semantic search for candidates by skills",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		role, _ := cmd.Flags().GetString("role")
		slots, _ := cmd.Flags().GetString("availability")
		limit, _ := cmd.Flags().GetInt("limit")
		threshold, _ := cmd.Flags().GetFloat64("threshold")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return search(cmd.Context(), client, os.Stdout, map[string]any{
			"query":        strings.Join(args, " "),
			"role":         role,
			"availability": splitList(slots),
			"limit":        limit,
			"threshold":    threshold,
		})
	},
}

func search(ctx context.Context, c *apiClient, w io.Writer, req map[string]any) error {
	resp, err := c.post(ctx, "/search", req)
	if err != nil {
		return err
	}
	var matches []matchView
	if err := decodeJSON(resp, &matches); err != nil {
		return err
	}
	printMatches(w, matches)
	return nil
}

var recruitCmd = &cobra.Command{
	Use:   "recruit",
	Short: "Interactive recruiter search",
	Long: `Start an interactive recruiter session. Describe who you need in plain
language; refine with follow-up messages.

Commands inside the session:
  /select <n>   pick candidate n from the last results
  /quit         end the session`,
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, _ := cmd.Flags().GetString("owner")
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return recruit(cmd.Context(), client, os.Stdin, os.Stdout, owner)
	},
}

type recruiterEvent struct {
	Type    string      `json:"type"`
	Message string      `json:"message"`
	Intent  any         `json:"intent"`
	Matches []matchView `json:"matches"`
}

func recruit(ctx context.Context, c *apiClient, in io.Reader, w io.Writer, owner string) error {
	resp, err := c.post(ctx, "/recruiter/sessions", map[string]string{"owner_email": owner})
	if err != nil {
		return err
	}
	var sess struct {
		ID string `json:"id"`
	}
	if err := decodeJSON(resp, &sess); err != nil {
		return err
	}
	defer func() {
		if resp, err := c.do(context.Background(), "DELETE", "/recruiter/sessions/"+sess.ID, nil); err == nil {
			resp.Body.Close()
		}
	}()

	var last []matchView
	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(w, colorize(colorCyan, "recruit> "))
		if !sc.Scan() {
			fmt.Fprintln(w)
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			return nil
		case strings.HasPrefix(line, "/select"):
			n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "/select")))
			if err != nil || n < 1 || n > len(last) {
				printWarning("choose a number between 1 and %d", len(last))
				continue
			}
			if err := selectCandidate(ctx, c, sess.ID, last[n-1].Profile.Email); err != nil {
				printError("%v", err)
				continue
			}
			printSuccess("Selected %s <%s>", last[n-1].Profile.Name, last[n-1].Profile.Email)
			continue
		}

		resp, err := c.post(ctx, "/recruiter/sessions/"+sess.ID+"/messages", map[string]string{"query": line})
		if err != nil {
			return err
		}
		err = readNDJSON(resp, func(raw json.RawMessage) error {
			var ev recruiterEvent
			if err := json.Unmarshal(raw, &ev); err != nil {
				return fmt.Errorf("decoding event: %w", err)
			}
			switch ev.Type {
			case "intent":
				data, _ := json.Marshal(ev.Intent)
				fmt.Fprintf(w, "%s %s\n", colorize(colorBold, "Understood:"), data)
			case "clarification":
				fmt.Fprintln(w, ev.Message)
			case "warning":
				printWarning("%s", ev.Message)
			case "results":
				last = ev.Matches
				printMatches(w, ev.Matches)
			case "error":
				printError("%s", ev.Message)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
}

func selectCandidate(ctx context.Context, c *apiClient, sessionID, email string) error {
	resp, err := c.post(ctx, "/recruiter/sessions/"+sessionID+"/select", map[string]string{"email": email})
	if err != nil {
		return err
	}
	return decodeJSON(resp, nil)
}

var teamCmd = &cobra.Command{
	Use:   "team <project-id>",
	Short: "Suggest a team for a project's open roles",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		withReport, _ := cmd.Flags().GetBool("report")
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		if withReport {
			return teamReport(cmd.Context(), client, os.Stdout, args[0])
		}
		return buildTeam(cmd.Context(), client, os.Stdout, args[0])
	},
}

type teamView struct {
	Project struct {
		Title string `json:"title"`
	} `json:"project"`
	Roles []struct {
		Role       string      `json:"role"`
		Candidates []matchView `json:"candidates"`
	} `json:"roles"`
	Briefing string `json:"briefing"`
}

func printTeam(w io.Writer, t teamView) {
	fmt.Fprintf(w, "%s %s\n", colorize(colorBold, "Team for"), t.Project.Title)
	if len(t.Roles) == 0 {
		fmt.Fprintln(w, "No open roles.")
	}
	for _, r := range t.Roles {
		fmt.Fprintf(w, "\n%s\n", colorize(colorCyan, r.Role))
		printMatches(w, r.Candidates)
	}
}

func buildTeam(ctx context.Context, c *apiClient, w io.Writer, projectID string) error {
	resp, err := c.post(ctx, "/projects/"+url.PathEscape(projectID)+"/team", nil)
	if err != nil {
		return err
	}
	var t teamView
	if err := decodeJSON(resp, &t); err != nil {
		return err
	}
	printTeam(w, t)
	return nil
}

func teamReport(ctx context.Context, c *apiClient, w io.Writer, projectID string) error {
	resp, err := c.get(ctx, "/projects/"+url.PathEscape(projectID)+"/report")
	if err != nil {
		return err
	}
	return readSSE(resp, func(ev sseEvent) error {
		switch ev.Name {
		case "team":
			var t teamView
			if err := json.Unmarshal(ev.Data, &t); err != nil {
				return fmt.Errorf("decoding team: %w", err)
			}
			printTeam(w, t)
			fmt.Fprintf(w, "\n%s\n", colorize(colorBold, "Report"))
		case "message":
			var chunk struct {
				Text string `json:"text"`
			}
			if err := json.Unmarshal(ev.Data, &chunk); err != nil {
				return fmt.Errorf("decoding report chunk: %w", err)
			}
			fmt.Fprint(w, chunk.Text)
		case "done":
			fmt.Fprintln(w)
		case "error":
			var e apiError
			json.Unmarshal(ev.Data, &e)
			return fmt.Errorf("report failed: %s", e.Error.Message)
		}
		return nil
	})
}

func init() {
	searchCmd.Flags().String("role", "", "required role")
	searchCmd.Flags().String("availability", "", "comma-separated slots the candidate must have")
	searchCmd.Flags().Int("limit", 0, "maximum results (0 for the server default)")
	searchCmd.Flags().Float64("threshold", 0, "minimum similarity (0 for the server default)")

	recruitCmd.Flags().String("owner", "", "recruiter email, excluded from results")

	teamCmd.Flags().Bool("report", false, "stream a narrative report after the suggestions")
}

// --- reviews and messages ---

var reviewCmd = &cobra.Command{
	Use:   "review <project-id> <reviewer> <reviewee> <rating>",
	Short: "Rate a teammate from 1 to 5",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		rating, err := strconv.Atoi(args[3])
		if err != nil {
			return fmt.Errorf("rating must be a number: %w", err)
		}
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/reviews", map[string]any{
			"project_id":     args[0],
			"reviewer_email": args[1],
			"reviewee_email": args[2],
			"rating":         rating,
		})
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Review recorded")
		return nil
	},
}

var messageCmd = &cobra.Command{
	Use:   "message",
	Short: "Direct messages between students",
}

var messageSendCmd = &cobra.Command{
	Use:   "send <from> <to> <text>",
	Short: "Send a direct message",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/messages", map[string]string{
			"sender_email":   args[0],
			"receiver_email": args[1],
			"message":        strings.Join(args[2:], " "),
		})
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Sent")
		return nil
	},
}

var messageThreadCmd = &cobra.Command{
	Use:   "thread <a> <b>",
	Short: "Show the conversation between two students",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return showThread(cmd.Context(), client, os.Stdout, args[0], args[1])
	},
}

func showThread(ctx context.Context, c *apiClient, w io.Writer, a, b string) error {
	q := url.Values{"a": {a}, "b": {b}}
	resp, err := c.get(ctx, "/messages?"+q.Encode())
	if err != nil {
		return err
	}
	var msgs []struct {
		SenderEmail string    `json:"sender_email"`
		Body        string    `json:"message"`
		CreatedAt   time.Time `json:"created_at"`
	}
	if err := decodeJSON(resp, &msgs); err != nil {
		return err
	}
	if len(msgs) == 0 {
		fmt.Fprintln(w, "No messages.")
		return nil
	}
	for _, m := range msgs {
		fmt.Fprintf(w, "[%s] %s: %s\n", m.CreatedAt.Local().Format("2006-01-02 15:04"), colorize(colorBold, m.SenderEmail), m.Body)
	}
	return nil
}

func init() {
	messageCmd.AddCommand(messageSendCmd, messageThreadCmd)
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
		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
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

var configSetSecretCmd = &cobra.Command{
	Use:   "set-secret <key> <value>",
	Short: "Store a credential in the secrets file",
	Long:  "Store a credential in the secrets file. Keys: " + strings.Join(config.SecretKeys(), ", "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SetSecret(args[0], args[1]); err != nil {
			return err
		}
		printSuccess("Stored %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configSetCmd, configSetSecretCmd)
}
