package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func withTmpDirs(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("CARENOTE_DEVICE_DATA_DIR", filepath.Join(dir, "data"))
	t.Setenv("CARENOTE_LOG_LEVEL", "error")
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	if err != nil {
		t.Fatalf("%v: %v\n%s", args, err, out)
	}
	return out
}

func Test_defaultConfigPath(t *testing.T) {
	dir := withTmpDirs(t)
	want := filepath.Join(dir, "config", "carenote", "config.yaml")
	if got := defaultConfigPath(); got != want {
		t.Fatalf("defaultConfigPath=%q, want %q", got, want)
	}
}

func Test_loadDeviceID_Persists(t *testing.T) {
	dir := t.TempDir()
	id, err := loadDeviceID(dir)
	if err != nil {
		t.Fatalf("loadDeviceID: %v", err)
	}
	if !strings.HasPrefix(id, "dev-") {
		t.Fatalf("unexpected id %q", id)
	}
	again, err := loadDeviceID(dir)
	if err != nil || again != id {
		t.Fatalf("second load: id=%q err=%v, want %q", again, err, id)
	}
	info, err := os.Stat(deviceIDPath(dir))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("device id file mode %v", info.Mode().Perm())
	}
}

func Test_Record_Lifecycle(t *testing.T) {
	_ = withTmpDirs(t)

	var added recordView
	if err := json.Unmarshal([]byte(mustRun(t, "record", "add", "--kind", "note", "--json", `{"body":"call the pharmacy"}`)), &added); err != nil {
		t.Fatalf("decode add: %v", err)
	}
	if added.LocalID == "" || added.Synced || added.DeletedAt != nil {
		t.Fatalf("unexpected added record %+v", added)
	}
	if !strings.HasPrefix(added.SyncKey, added.DeviceID+"/") {
		t.Fatalf("sync key %q not derived from device %q", added.SyncKey, added.DeviceID)
	}

	var edited recordView
	if err := json.Unmarshal([]byte(mustRun(t, "record", "edit", "--id", added.LocalID, "--json", `{"body":"done"}`)), &edited); err != nil {
		t.Fatalf("decode edit: %v", err)
	}
	if !edited.UpdatedAt.After(added.UpdatedAt) {
		t.Fatalf("updated_at did not advance: %v -> %v", added.UpdatedAt, edited.UpdatedAt)
	}

	var live []recordView
	if err := json.Unmarshal([]byte(mustRun(t, "record", "list", "--kind", "note")), &live); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(live) != 1 {
		t.Fatalf("list = %+v", live)
	}
	var note struct {
		Body string `json:"body"`
	}
	if err := json.Unmarshal(live[0].Payload, &note); err != nil || note.Body != "done" {
		t.Fatalf("payload = %s (%v)", live[0].Payload, err)
	}

	mustRun(t, "record", "delete", "--id", added.LocalID)
	if err := json.Unmarshal([]byte(mustRun(t, "record", "list", "--kind", "note")), &live); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(live) != 0 {
		t.Fatalf("deleted record still listed: %+v", live)
	}
	var all []recordView
	if err := json.Unmarshal([]byte(mustRun(t, "record", "list", "--all")), &all); err != nil {
		t.Fatalf("decode list --all: %v", err)
	}
	if len(all) != 1 || all[0].DeletedAt == nil {
		t.Fatalf("tombstone missing: %+v", all)
	}

	if _, err := run(t, "record", "edit", "--id", added.LocalID, "--json", `{"body":"again"}`); err == nil {
		t.Fatalf("edit of deleted record must fail")
	}
}

func Test_Record_AddRejectsBadPayload(t *testing.T) {
	_ = withTmpDirs(t)
	if _, err := run(t, "record", "add", "--kind", "medication", "--json", `{"dosage":"1mg"}`); err == nil {
		t.Fatalf("want validation error")
	}
	if _, err := run(t, "record", "add", "--kind", "recipe", "--json", `{}`); err == nil {
		t.Fatalf("want unknown kind error")
	}
}

func Test_Occurrences(t *testing.T) {
	_ = withTmpDirs(t)
	var ev recordView
	payload := `{"title":"refill","date":"2024-01-31T09:00:00Z","frequency":"MONTHLY","interval":1}`
	if err := json.Unmarshal([]byte(mustRun(t, "record", "add", "--kind", "calendar_event", "--json", payload)), &ev); err != nil {
		t.Fatalf("decode add: %v", err)
	}

	out := mustRun(t, "occurrences", "--id", ev.LocalID, "--from", "2024-01-01T00:00:00Z", "--to", "2024-04-30T23:59:59Z")
	var occ []struct {
		Date time.Time `json:"date"`
	}
	if err := json.Unmarshal([]byte(out), &occ); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []string{"2024-01-31", "2024-02-29", "2024-03-31", "2024-04-30"}
	if len(occ) != len(want) {
		t.Fatalf("got %d occurrences, want %d", len(occ), len(want))
	}
	for i, o := range occ {
		if got := o.Date.Format(time.DateOnly); got != want[i] {
			t.Fatalf("occurrence %d = %s, want %s", i, got, want[i])
		}
	}
}

func Test_parseDay(t *testing.T) {
	start, err := parseDay("2024-03-10", false)
	if err != nil {
		t.Fatalf("parseDay: %v", err)
	}
	end, err := parseDay("2024-03-10", true)
	if err != nil {
		t.Fatalf("parseDay: %v", err)
	}
	if start.Hour() != 0 || start.Day() != 10 {
		t.Fatalf("start of day = %v", start)
	}
	if end.Day() != 10 || end.Hour() != 23 || end.Minute() != 59 {
		t.Fatalf("end of day = %v", end)
	}
	if _, err := parseDay("10/03/2024", false); err == nil {
		t.Fatalf("want parse error")
	}
}

func Test_Sync_RequiresToken(t *testing.T) {
	_ = withTmpDirs(t)
	_, err := run(t, "sync")
	if err == nil || !strings.Contains(err.Error(), "token") {
		t.Fatalf("want missing token error, got %v", err)
	}
}
