package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/crew/internal/logging"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View crew debug logs",
	Long: `View and filter the crew debug log written by 'crew serve'.

Examples:
  # Show the last 50 lines
  crew logs

  # Everything logged for one team
  crew logs --team t1 -n 0

  # Follow logs in real-time
  crew logs -f

  # Filter by log level
  crew logs --level warn

  # Show logs from the last hour
  crew logs --since 1h

  # Search for specific patterns
  crew logs --grep "throttled|conflict"`,
	Args: cobra.NoArgs,
	RunE: runLogs,
}

var (
	logsTail     int
	logsFollow   bool
	logsLevel    string
	logsSince    string
	logsGrep     string
	logsTeam     string
	logsTeammate string
)

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().IntVarP(&logsTail, "tail", "n", 50, "Number of lines to show (0 for all)")
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Follow log output (like tail -f)")
	logsCmd.Flags().StringVar(&logsLevel, "level", "", "Filter by minimum level (debug/info/warn/error)")
	logsCmd.Flags().StringVar(&logsSince, "since", "", "Show logs since duration ago (e.g., 1h, 30m)")
	logsCmd.Flags().StringVar(&logsGrep, "grep", "", "Filter logs matching pattern (regex)")
	logsCmd.Flags().StringVar(&logsTeam, "team", "", "Only lines logged for this team ID")
	logsCmd.Flags().StringVar(&logsTeammate, "teammate", "", "Only lines logged for this teammate ID")
}

// logEntry represents a parsed JSON log line
type logEntry struct {
	Time       time.Time      `json:"time"`
	Level      string         `json:"level"`
	Msg        string         `json:"msg"`
	TeamID     string         `json:"team_id,omitempty"`
	TeammateID string         `json:"teammate_id,omitempty"`
	Extra      map[string]any `json:"-"` // Captures additional fields
}

// UnmarshalJSON implements custom unmarshaling to capture extra fields
func (e *logEntry) UnmarshalJSON(data []byte) error {
	// First, unmarshal known fields using a type alias to avoid recursion
	type Alias logEntry
	aux := &struct {
		*Alias
	}{
		Alias: (*Alias)(e),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, k := range []string{"time", "level", "msg", "team_id", "teammate_id"} {
		delete(all, k)
	}
	if len(all) > 0 {
		e.Extra = all
	}
	return nil
}

// logFilter selects log entries.
type logFilter struct {
	minLevel   int
	since      time.Time
	grep       *regexp.Regexp
	teamID     string
	teammateID string
}

// levelPriority returns the priority of a log level for filtering
func levelPriority(level string) int {
	switch strings.ToUpper(level) {
	case logging.LevelDebug:
		return 0
	case logging.LevelInfo:
		return 1
	case logging.LevelWarn:
		return 2
	case logging.LevelError:
		return 3
	default:
		return -1
	}
}

func (s styles) level(level string) string {
	tag := "[" + strings.ToUpper(level) + "]"
	switch strings.ToUpper(level) {
	case logging.LevelDebug:
		return s.muted.Render(tag)
	case logging.LevelInfo:
		return s.info.Render(tag)
	case logging.LevelWarn:
		return s.warn.Render(tag)
	case logging.LevelError:
		return s.fail.Render(tag)
	default:
		return tag
	}
}

// formatLogEntry formats a log entry for terminal output
func formatLogEntry(s styles, entry *logEntry) string {
	var sb strings.Builder

	sb.WriteString(s.muted.Render("[" + entry.Time.Format("15:04:05.000") + "]"))
	sb.WriteString(" ")
	sb.WriteString(s.level(entry.Level))
	sb.WriteString(" ")
	sb.WriteString(entry.Msg)

	if entry.TeamID != "" {
		sb.WriteString(" " + s.accent.Render("team_id="+entry.TeamID))
	}
	if entry.TeammateID != "" {
		sb.WriteString(" " + s.accent.Render("teammate_id="+entry.TeammateID))
	}

	keys := make([]string, 0, len(entry.Extra))
	for k := range entry.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sb.WriteString(" " + s.accent.Render(k+"=") + fmt.Sprintf("%v", entry.Extra[k]))
	}
	return sb.String()
}

func runLogs(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logPath := filepath.Join(cfg.Logging.LogDir(), logging.LogFileName)

	out := cmd.OutOrStdout()
	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		fmt.Fprintln(out, "No logs found.")
		fmt.Fprintln(out, "Logs are stored at:", logPath)
		return nil
	}

	f := logFilter{minLevel: -1, teamID: logsTeam, teammateID: logsTeammate}
	if logsLevel != "" {
		f.minLevel = levelPriority(logging.ParseLevel(logsLevel))
	}
	if logsSince != "" {
		duration, err := time.ParseDuration(logsSince)
		if err != nil {
			return fmt.Errorf("invalid duration format: %w", err)
		}
		f.since = time.Now().Add(-duration)
	}
	if logsGrep != "" {
		if f.grep, err = regexp.Compile(logsGrep); err != nil {
			return fmt.Errorf("invalid grep pattern: %w", err)
		}
	}

	s := newStyles(out)
	if logsFollow {
		return followLogs(cmd, s, logPath, f)
	}
	return displayLogs(out, s, logPath, logsTail, f)
}

// displayLogs reads the log file and displays filtered entries
func displayLogs(out io.Writer, s styles, logPath string, tail int, f logFilter) error {
	file, err := os.Open(logPath)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if line, ok := renderLogLine(s, scanner.Text(), f); ok {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading log file: %w", err)
	}

	if tail > 0 && len(lines) > tail {
		lines = lines[len(lines)-tail:]
	}
	for _, line := range lines {
		fmt.Fprintln(out, line)
	}
	if len(lines) == 0 {
		fmt.Fprintln(out, "No matching log entries found.")
	}
	return nil
}

// followLogs implements tail -f behavior until the command is cancelled.
func followLogs(cmd *cobra.Command, s styles, logPath string, f logFilter) error {
	file, err := os.Open(logPath)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer file.Close()

	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("failed to seek to end: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Following logs... (Ctrl+C to stop)\n\n")

	ctx := cmd.Context()
	reader := bufio.NewReader(file)
	for {
		line, err := reader.ReadString('\n')
		if err == io.EOF {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("error reading log file: %w", err)
		}
		if rendered, ok := renderLogLine(s, line, f); ok {
			fmt.Fprintln(out, rendered)
		}
	}
}

// renderLogLine parses and filters one raw line. Lines that are not JSON
// are shown as-is.
func renderLogLine(s styles, raw string, f logFilter) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	var entry logEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return raw, true
	}
	if !f.passes(&entry) {
		return "", false
	}
	return formatLogEntry(s, &entry), true
}

// passes checks if a log entry passes all filter criteria
func (f logFilter) passes(entry *logEntry) bool {
	if f.minLevel >= 0 && levelPriority(entry.Level) < f.minLevel {
		return false
	}
	if !f.since.IsZero() && entry.Time.Before(f.since) {
		return false
	}
	if f.teamID != "" && entry.TeamID != f.teamID {
		return false
	}
	if f.teammateID != "" && entry.TeammateID != f.teammateID {
		return false
	}

	// Grep filter - search in message and extra fields
	if f.grep != nil {
		searchText := entry.Msg
		for _, v := range entry.Extra {
			searchText += " " + fmt.Sprintf("%v", v)
		}
		if !f.grep.MatchString(searchText) {
			return false
		}
	}
	return true
}
