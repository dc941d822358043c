package cli

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"solotranscribe/internal/model"
)

func loadedInspectModel(t *testing.T) inspectModel {
	t.Helper()
	m := newInspectModel("manifest.json")
	updated, _ := m.Update(inspectLoadedMsg{mf: sampleManifest()})
	return updated.(inspectModel)
}

func keyRune(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func TestInspectShowsAllJobsAfterLoad(t *testing.T) {
	m := loadedInspectModel(t)
	if got := len(m.table.Rows()); got != 3 {
		t.Fatalf("expected 3 rows, got %d", got)
	}
	view := m.View()
	if !strings.Contains(view, "batch batch_test") || !strings.Contains(view, "filter: all") {
		t.Fatalf("unexpected header in view:\n%s", view)
	}
}

func TestInspectFilterCyclesStatuses(t *testing.T) {
	m := loadedInspectModel(t)

	updated, _ := m.Update(keyRune('f'))
	m = updated.(inspectModel)
	if inspectFilters[m.filter] != model.StatusFailed {
		t.Fatalf("expected failed filter, got %q", inspectFilters[m.filter])
	}
	rows := m.table.Rows()
	if len(rows) != 1 || rows[0][1] != model.StatusFailed {
		t.Fatalf("expected only the failed job, got %v", rows)
	}

	for i := 1; i < len(inspectFilters); i++ {
		updated, _ = m.Update(keyRune('f'))
		m = updated.(inspectModel)
	}
	if m.filter != 0 || len(m.table.Rows()) != 3 {
		t.Fatalf("expected filter to wrap to all jobs, got filter=%d rows=%d", m.filter, len(m.table.Rows()))
	}
}

func TestInspectEnterTogglesDetail(t *testing.T) {
	m := loadedInspectModel(t)
	updated, _ := m.Update(keyRune('f'))
	m = updated.(inspectModel)

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = updated.(inspectModel)
	if !m.detail {
		t.Fatal("expected detail view after enter")
	}
	view := m.View()
	if !strings.Contains(view, "failure: "+model.ReasonAccessDenied) || !strings.Contains(view, "Private video") {
		t.Fatalf("expected failure details in view:\n%s", view)
	}

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = updated.(inspectModel)
	if m.detail {
		t.Fatal("expected esc to close the detail view")
	}
}

func TestInspectEnterIgnoredWithoutRows(t *testing.T) {
	m := newInspectModel("manifest.json")
	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if updated.(inspectModel).detail {
		t.Fatal("did not expect detail view without jobs")
	}
}

func TestInspectQuitKey(t *testing.T) {
	m := loadedInspectModel(t)
	_, cmd := m.Update(keyRune('q'))
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("expected tea.QuitMsg")
	}
}

func TestInspectLoadErrorBeforeFirstLoadIsFatal(t *testing.T) {
	m := newInspectModel("manifest.json")
	updated, cmd := m.Update(inspectLoadedMsg{err: errors.New("no such file")})
	if updated.(inspectModel).fatalErr == nil || cmd == nil {
		t.Fatal("expected fatal error and quit")
	}

	loaded := loadedInspectModel(t)
	updated, _ = loaded.Update(inspectLoadedMsg{err: errors.New("busy")})
	got := updated.(inspectModel)
	if got.fatalErr != nil || !strings.Contains(got.statusMessage, "reload failed") {
		t.Fatalf("expected reload failure to keep the old manifest, got %+v", got.statusMessage)
	}
}
