package cmd

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/workbench/archive"
	"github.com/pithecene-io/workbench/cli/reader"
	"github.com/pithecene-io/workbench/evaluate"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// runApp runs the workbench app in-process against dir.
func runApp(t *testing.T, dir, stdin string, args ...string) (stdout, stderr string, err error) {
	t.Helper()

	app := NewApp("test")
	var out, errOut bytes.Buffer
	app.Writer = &out
	app.ErrWriter = &errOut
	app.Reader = strings.NewReader(stdin)
	app.ExitErrHandler = func(*cli.Context, error) {}

	argv := append([]string{"workbench", "--task", dir}, args...)
	err = app.Run(argv)
	return out.String(), errOut.String(), err
}

func mustRun(t *testing.T, dir string, args ...string) string {
	t.Helper()
	out, errOut, err := runApp(t, dir, "", args...)
	if err != nil {
		t.Fatalf("%v: %v\nstderr: %s", args, err, errOut)
	}
	return out
}

func decode(t *testing.T, data string, v any) {
	t.Helper()
	if err := json.Unmarshal([]byte(data), v); err != nil {
		t.Fatalf("decode %q: %v", data, err)
	}
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	var coder cli.ExitCoder
	if !errors.As(err, &coder) {
		t.Fatalf("error %v is not a cli.ExitCoder", err)
	}
	return coder.ExitCode()
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestReadOnlyFlags_IncludesTUI(t *testing.T) {
	flags := ReadOnlyFlags()

	hasTUI := false
	for _, f := range flags {
		if f.Names()[0] == "tui" {
			hasTUI = true
			break
		}
	}

	if !hasTUI {
		t.Error("ReadOnlyFlags should include --tui flag for explicit error handling")
	}
}

func TestParseCell(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"true", true},
		{"false", false},
		{"3", int64(3)},
		{"0.5", 0.5},
		{"null", nil},
		{"looks fine", "looks fine"},
	}
	for _, tt := range tests {
		if got := parseCell(tt.in); got != tt.want {
			t.Errorf("parseCell(%q) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}

func TestChatRun_StreamsAndRecords(t *testing.T) {
	dir := t.TempDir()

	out, errOut, err := runApp(t, dir, "", "chat", "run", "hello", "world")
	if err != nil {
		t.Fatalf("chat run: %v\nstderr: %s", err, errOut)
	}
	if out != "hello world\n" {
		t.Errorf("streamed output = %q, want %q", out, "hello world\n")
	}

	var items []reader.TraceListItem
	decode(t, mustRun(t, dir, "traces", "list", "--format", "json"), &items)
	if len(items) != 1 {
		t.Fatalf("got %d traces, want 1", len(items))
	}
	if items[0].Name != "Echo" || items[0].State != reader.StateSucceeded || items[0].Runs != 2 {
		t.Errorf("unexpected trace: %+v", items[0])
	}
}

func TestChatRun_StdinLines(t *testing.T) {
	dir := t.TempDir()

	_, errOut, err := runApp(t, dir, "first\n\n  \nsecond\n", "chat", "run", "--quiet", "--policy", "manual", "--save")
	if err != nil {
		t.Fatalf("chat run: %v\nstderr: %s", err, errOut)
	}

	var stats reader.TraceStats
	decode(t, mustRun(t, dir, "traces", "stats", "--format", "json"), &stats)
	if stats.Traces != 2 || stats.Runs != 4 || stats.LLMRuns != 2 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestChatRun_ManualWithoutSaveKeepsNothing(t *testing.T) {
	dir := t.TempDir()
	mustRun(t, dir, "chat", "run", "--quiet", "--policy", "manual", "hi")

	if _, err := os.Stat(filepath.Join(dir, LogFile)); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("trace log written without a save: %v", err)
	}
}

func TestChatRun_InvalidChoices(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"policy", []string{"--policy", "sometimes"}},
		{"model", []string{"--model", "oracle"}},
		{"process without command", []string{"--model", "process"}},
		{"negative save-every", []string{"--save-every", "-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"chat", "run"}, tt.args...)
			_, _, err := runApp(t, t.TempDir(), "", append(args, "hi")...)
			if err == nil {
				t.Fatal("expected error")
			}
			if code := exitCode(t, err); code != exitConfigError {
				t.Errorf("exit code = %d, want %d", code, exitConfigError)
			}
		})
	}
}

func TestChatRun_BadConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "workbench.yaml")
	writeFile(t, cfg, "trace:\n  policy: interval\n  bogus: 1\n")

	_, _, err := runApp(t, dir, "", "--config", cfg, "chat", "run", "hi")
	if err == nil {
		t.Fatal("expected error for unknown key")
	}
	if code := exitCode(t, err); code != exitConfigError {
		t.Errorf("exit code = %d, want %d", code, exitConfigError)
	}
}

func TestTracesInspect(t *testing.T) {
	dir := t.TempDir()
	mustRun(t, dir, "chat", "run", "--quiet", "--tag", "smoke", "ping")

	var items []reader.TraceListItem
	decode(t, mustRun(t, dir, "traces", "list", "--format", "json"), &items)
	if len(items) != 1 {
		t.Fatalf("got %d traces, want 1", len(items))
	}

	var resp reader.InspectTraceResponse
	decode(t, mustRun(t, dir, "traces", "inspect", "--format", "json", items[0].RunID[:8]), &resp)
	if resp.RunID != items[0].RunID {
		t.Errorf("run id = %s, want %s", resp.RunID, items[0].RunID)
	}
	if len(resp.Tags) != 1 || resp.Tags[0] != "smoke" {
		t.Errorf("tags = %v, want [smoke]", resp.Tags)
	}
	if len(resp.Runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(resp.Runs))
	}
	if resp.Runs[1].RunType != "llm" || resp.Runs[1].Depth != 1 {
		t.Errorf("child run = %+v", resp.Runs[1])
	}
}

func TestTracesInspect_NotFound(t *testing.T) {
	_, _, err := runApp(t, t.TempDir(), "", "traces", "inspect", "--format", "json", "deadbeef")
	if err == nil {
		t.Fatal("expected error")
	}
	if code := exitCode(t, err); code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
}

func TestTracesList_RejectsTUI(t *testing.T) {
	_, _, err := runApp(t, t.TempDir(), "", "traces", "list", "--tui")
	if err == nil || !strings.Contains(err.Error(), "--tui is not supported") {
		t.Errorf("expected --tui rejection, got %v", err)
	}
}

func TestTracesList_InvalidState(t *testing.T) {
	_, _, err := runApp(t, t.TempDir(), "", "traces", "list", "--state", "done")
	if err == nil {
		t.Fatal("expected error for invalid state")
	}
}

func TestTracesExport_FSDeduplicates(t *testing.T) {
	dir := t.TempDir()
	mustRun(t, dir, "chat", "run", "--quiet", "one")

	var first exportResult
	decode(t, mustRun(t, dir, "traces", "export", "--format", "json"), &first)
	if first.Written != 1 || first.Total != 1 || first.Backend != "fs" {
		t.Errorf("first export = %+v", first)
	}
	if first.Path != filepath.Join(dir, ExportDir) {
		t.Errorf("export path = %s, want %s", first.Path, filepath.Join(dir, ExportDir))
	}

	mustRun(t, dir, "chat", "run", "--quiet", "two")
	var second exportResult
	decode(t, mustRun(t, dir, "traces", "export", "--format", "json"), &second)
	if second.Written != 1 || second.Total != 2 {
		t.Errorf("second export = %+v, want only the new trace written", second)
	}

	var exported []reader.ExportedItem
	decode(t, mustRun(t, dir, "traces", "exported", "--format", "json"), &exported)
	if len(exported) != 2 {
		t.Fatalf("got %d exported traces, want 2", len(exported))
	}
	for _, e := range exported {
		if e.Task != filepath.Base(dir) {
			t.Errorf("task = %q, want %q", e.Task, filepath.Base(dir))
		}
	}
}

func TestTracesExport_UnknownBackend(t *testing.T) {
	_, _, err := runApp(t, t.TempDir(), "", "traces", "export", "--backend", "tape")
	if err == nil {
		t.Fatal("expected error")
	}
	if code := exitCode(t, err); code != exitConfigError {
		t.Errorf("exit code = %d, want %d", code, exitConfigError)
	}
}

func TestTracesExport_S3WithoutBucket(t *testing.T) {
	_, _, err := runApp(t, t.TempDir(), "", "traces", "export", "--backend", "s3")
	if err == nil {
		t.Fatal("expected error")
	}
	if code := exitCode(t, err); code != exitConfigError {
		t.Errorf("exit code = %d, want %d", code, exitConfigError)
	}
}

func TestTracesArchive_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	mustRun(t, dir, "chat", "run", "--quiet", "keep me")

	var res archiveResult
	decode(t, mustRun(t, dir, "traces", "archive", "--format", "json"), &res)
	want := filepath.Join(dir, ArchiveDir, LogFile+archive.Ext)
	if res.Destination != want {
		t.Errorf("destination = %s, want %s", res.Destination, want)
	}
	if res.Compressed == 0 || res.Uncompressed == 0 {
		t.Errorf("sizes not reported: %+v", res)
	}

	if err := os.Remove(filepath.Join(dir, LogFile)); err != nil {
		t.Fatal(err)
	}
	mustRun(t, dir, "traces", "archive", "--format", "json", "--restore", want)

	var items []reader.TraceListItem
	decode(t, mustRun(t, dir, "traces", "list", "--format", "json"), &items)
	if len(items) != 1 {
		t.Errorf("got %d traces after restore, want 1", len(items))
	}
}

func TestTracesArchive_NoLog(t *testing.T) {
	_, _, err := runApp(t, t.TempDir(), "", "traces", "archive")
	if err == nil {
		t.Fatal("expected error without a trace log")
	}
}

// chainFixture writes two CSV files sharing an id column.
func chainFixture(t *testing.T) string {
	t.Helper()
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "questions.csv"), "id,q\n1,hi\n2,yo\n")
	writeFile(t, filepath.Join(src, "answers.csv"), "id,a\n1,hi\n2,no\n")
	return src
}

func TestChain_AddMergeShow(t *testing.T) {
	dir := t.TempDir()
	src := chainFixture(t)

	mustRun(t, dir, "chain", "add", filepath.Join(src, "questions.csv"), filepath.Join(src, "answers.csv"))

	var opts []chainOption
	decode(t, mustRun(t, dir, "chain", "options", "--format", "json", "answers.csv"), &opts)
	if len(opts) != 2 || opts[1].Kind != "merge" {
		t.Errorf("options = %+v, want concat and merge", opts)
	}

	mustRun(t, dir, "chain", "set", "--type", "merge", "answers.csv")

	var list []reader.ChainElementItem
	decode(t, mustRun(t, dir, "chain", "list", "--format", "json"), &list)
	if len(list) != 2 || list[0].Type != "concat" || list[1].Type != "merge" {
		t.Fatalf("chain list = %+v", list)
	}

	var view struct {
		Columns []string `json:"columns"`
		Rows    [][]any  `json:"rows"`
	}
	decode(t, mustRun(t, dir, "chain", "show", "--format", "json"), &view)
	if strings.Join(view.Columns, ",") != "id,q,a" {
		t.Errorf("columns = %v, want [id q a]", view.Columns)
	}
	if len(view.Rows) != 2 {
		t.Errorf("got %d rows, want 2", len(view.Rows))
	}

	decode(t, mustRun(t, dir, "chain", "show", "--format", "json", "--upto", "0", "--limit", "1"), &view)
	if strings.Join(view.Columns, ",") != "id,q" || len(view.Rows) != 1 {
		t.Errorf("upto/limit view = %+v", view)
	}
}

func TestChain_SetJoinRejectedOnMerge(t *testing.T) {
	dir := t.TempDir()
	src := chainFixture(t)
	mustRun(t, dir, "chain", "add", filepath.Join(src, "*.csv"))
	mustRun(t, dir, "chain", "set", "--type", "merge", "1")

	_, _, err := runApp(t, dir, "", "chain", "set", "--join", "inner", "1")
	if err == nil {
		t.Fatal("expected error for --join on a merge")
	}
}

func TestChain_MoveAndRemove(t *testing.T) {
	dir := t.TempDir()
	src := chainFixture(t)
	mustRun(t, dir, "chain", "add", filepath.Join(src, "*.csv"))

	// Glob order is lexical: answers.csv, questions.csv.
	mustRun(t, dir, "chain", "down", "answers.csv")
	var list []reader.ChainElementItem
	decode(t, mustRun(t, dir, "chain", "list", "--format", "json"), &list)
	if len(list) != 2 || list[0].Name != "questions.csv" {
		t.Fatalf("after down: %+v", list)
	}

	mustRun(t, dir, "chain", "rm", "questions.csv")
	decode(t, mustRun(t, dir, "chain", "list", "--format", "json"), &list)
	if len(list) != 1 || list[0].Name != "answers.csv" {
		t.Errorf("after rm: %+v", list)
	}
	if _, err := os.Stat(filepath.Join(dir, DataDir, "questions.csv")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("removed element's file still present: %v", err)
	}

	_, _, err := runApp(t, dir, "", "chain", "rm", "nope.csv")
	if err == nil {
		t.Error("expected error for unknown element")
	}
}

func TestEval_RunSetStats(t *testing.T) {
	dir := t.TempDir()
	src := chainFixture(t)
	cfg := filepath.Join(dir, "workbench.yaml")
	writeFile(t, cfg, `eval:
  input: "{q}"
  example: a
  outputs:
    - name: model
      format: "{q}"
  evaluators:
    - name: exact
      type: full_match
`)
	mustRun(t, dir, "chain", "add", filepath.Join(src, "questions.csv"), filepath.Join(src, "answers.csv"))
	mustRun(t, dir, "chain", "set", "--type", "merge", "answers.csv")

	var summary []evaluate.ColumnSummary
	decode(t, mustRun(t, dir, "--config", cfg, "eval", "run", "--format", "json"), &summary)
	score := func() float64 {
		for _, s := range summary {
			if s.Column == "__model-exact" {
				return s.Value
			}
		}
		t.Fatalf("no __model-exact in summary %+v", summary)
		return 0
	}
	if got := score(); got != 0.5 {
		t.Errorf("exact mean = %v, want 0.5", got)
	}

	mustRun(t, dir, "--config", cfg, "eval", "set", "1", "model-exact", "true")
	decode(t, mustRun(t, dir, "--config", cfg, "eval", "stats", "--format", "json"), &summary)
	if got := score(); got != 1 {
		t.Errorf("exact mean after manual score = %v, want 1", got)
	}

	var row evalRow
	decode(t, mustRun(t, dir, "--config", cfg, "eval", "show", "--format", "json", "1"), &row)
	if row.Input != "yo" || row.Example != "no" || len(row.Outputs) != 1 {
		t.Errorf("row = %+v", row)
	}

	// Rebuild drops the manual score.
	decode(t, mustRun(t, dir, "--config", cfg, "eval", "run", "--rebuild", "--format", "json"), &summary)
	if got := score(); got != 0.5 {
		t.Errorf("exact mean after rebuild = %v, want 0.5", got)
	}
}

func TestEval_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "workbench.yaml")
	writeFile(t, cfg, "eval:\n  evaluators:\n    - name: x\n      type: vibes\n")

	_, _, err := runApp(t, dir, "", "--config", cfg, "eval", "run")
	if err == nil {
		t.Fatal("expected error")
	}
	if code := exitCode(t, err); code != exitConfigError {
		t.Errorf("exit code = %d, want %d", code, exitConfigError)
	}
}

func TestVersion(t *testing.T) {
	var resp VersionResponse
	decode(t, mustRun(t, t.TempDir(), "version", "--format", "json"), &resp)
	if resp.Commit != "test" || resp.Version == "" {
		t.Errorf("version = %+v", resp)
	}
}
