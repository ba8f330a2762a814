package ui

import (
	"strings"
	"testing"

	"github.com/open-schedule/schedule-client/internal/model"
	"github.com/open-schedule/schedule-client/internal/store"
)

func sampleTable() store.TableView {
	return store.TableView{
		LocalID:     1,
		GlobalID:    501,
		Name:        "Sprint",
		Description: "Q1 plan",
		Tasks: []store.TaskView{
			{
				LocalID:   1,
				Name:      "Design",
				StartDate: "2024-01-01",
				EndDate:   "2024-01-02",
				Comments:  []model.Comment{{UserID: 2, Time: 1200, Text: "looks good"}},
			},
		},
		Permissions: map[int32]model.Permission{7: model.PermissionOwner},
	}
}

func TestTablesListing(t *testing.T) {
	r := NewPlainRenderer()

	out := r.Tables([]store.TableView{sampleTable(), {LocalID: 2, Name: "Backlog"}})
	for _, want := range []string{"Sprint", "#501", "1 tasks", "Backlog", "local"} {
		if !strings.Contains(out, want) {
			t.Errorf("listing missing %q:\n%s", want, out)
		}
	}
}

func TestTablesEmpty(t *testing.T) {
	out := NewPlainRenderer().Tables(nil)
	if !strings.Contains(out, "no tables") {
		t.Errorf("empty listing = %q", out)
	}
}

func TestTableDetail(t *testing.T) {
	r := NewPlainRenderer()
	names := func(id int32) string {
		if id == 2 {
			return "mika"
		}
		return ""
	}

	out := r.Table(sampleTable(), names)
	for _, want := range []string{"Sprint", "Q1 plan", "Design", "2024-01-01 .. 2024-01-02", "mika:", "looks good", "user 7", "owner"} {
		if !strings.Contains(out, want) {
			t.Errorf("detail missing %q:\n%s", want, out)
		}
	}
}

func TestStatusPanel(t *testing.T) {
	out := NewPlainRenderer().Status("AUTHENTICATED", 42, 3, 1)
	for _, want := range []string{"AUTHENTICATED", "42", "tables   3", "pending  1"} {
		if !strings.Contains(out, want) {
			t.Errorf("status missing %q:\n%s", want, out)
		}
	}
}
