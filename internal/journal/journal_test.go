package journal

import (
	"reflect"
	"testing"
)

func TestLatest(t *testing.T) {
	tests := []struct {
		name    string
		appends []Entry[string]
		want    Entry[string]
		wantOK  bool
	}{
		{
			name:   "empty journal",
			want:   Entry[string]{},
			wantOK: false,
		},
		{
			name:    "single entry",
			appends: []Entry[string]{{Time: 100, Change: "a"}},
			want:    Entry[string]{Time: 100, Change: "a"},
			wantOK:  true,
		},
		{
			name: "max timestamp wins regardless of append order",
			appends: []Entry[string]{
				{Time: 300, Change: "c"},
				{Time: 100, Change: "a"},
				{Time: 200, Change: "b"},
			},
			want:   Entry[string]{Time: 300, Change: "c"},
			wantOK: true,
		},
		{
			name: "tie broken by later insertion",
			appends: []Entry[string]{
				{Time: 100, Change: "first"},
				{Time: 100, Change: "second"},
			},
			want:   Entry[string]{Time: 100, Change: "second"},
			wantOK: true,
		},
		{
			name: "earlier timestamp appended later does not win",
			appends: []Entry[string]{
				{Time: 500, Change: "founding"},
				{Time: 400, Change: "stale"},
			},
			want:   Entry[string]{Time: 500, Change: "founding"},
			wantOK: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var j Journal[string]
			for _, e := range tt.appends {
				j.Append(e.Time, e.Change)
			}
			got, ok := j.Latest()
			if ok != tt.wantOK {
				t.Fatalf("Latest() ok = %v, want %v", ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("Latest() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestInitial(t *testing.T) {
	var j Journal[string]
	j.Append(200, "second")
	j.Append(100, "founding")
	j.Append(100, "duplicate")
	j.Append(300, "third")

	got, ok := j.Initial()
	if !ok {
		t.Fatal("Initial() ok = false, want true")
	}
	want := Entry[string]{Time: 100, Change: "founding"}
	if got != want {
		t.Errorf("Initial() = %+v, want %+v", got, want)
	}
}

func TestDuplicateTimestampsRetained(t *testing.T) {
	var j Journal[int]
	j.Append(50, 1)
	j.Append(50, 2)
	j.Append(50, 3)

	if j.Len() != 3 {
		t.Errorf("Len() = %d, want 3", j.Len())
	}

	want := []Entry[int]{{50, 1}, {50, 2}, {50, 3}}
	if got := j.Entries(); !reflect.DeepEqual(got, want) {
		t.Errorf("Entries() = %v, want %v", got, want)
	}
}

func TestEntriesReturnsCopy(t *testing.T) {
	var j Journal[int]
	j.Append(1, 10)
	snap := j.Entries()
	j.Append(2, 20)

	if len(snap) != 1 {
		t.Errorf("snapshot length = %d, want 1", len(snap))
	}
}
