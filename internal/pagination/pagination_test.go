package pagination

import (
	"reflect"
	"testing"
)

func TestClampLimit(t *testing.T) {
	cases := []struct{ in, want int }{
		{0, DefaultLimit},
		{-5, 1},
		{1, 1},
		{42, 42},
		{100, 100},
		{5000, MaxLimit},
	}
	for _, tc := range cases {
		if got := ClampLimit(tc.in); got != tc.want {
			t.Fatalf("ClampLimit(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestParseDir(t *testing.T) {
	if d, err := ParseDir(""); err != nil || d != Forward {
		t.Fatalf("empty dir should default forward, got %v %v", d, err)
	}
	if d, err := ParseDir("b"); err != nil || d != Backward {
		t.Fatalf("expected backward, got %v %v", d, err)
	}
	if _, err := ParseDir("sideways"); err == nil {
		t.Fatalf("expected error for invalid dir")
	}
}

func TestForwardWindow(t *testing.T) {
	w := Cursor{Dir: Forward, From: "m2", Limit: 2}.Window()
	if !w.Ascending {
		t.Fatalf("forward window must be ascending")
	}
	if !w.Lower.IsValue() || w.Lower.RawValue() != "m2" {
		t.Fatalf("lower bound should be m2")
	}
	if !w.Upper.IsPosInf() {
		t.Fatalf("upper bound should be +inf")
	}
}

func TestBackwardWindowSwapsBounds(t *testing.T) {
	w := Cursor{Dir: Backward, To: "m3", Limit: 2}.Window()
	if w.Ascending {
		t.Fatalf("backward window must be descending")
	}
	if !w.Lower.IsNegInf() {
		t.Fatalf("lower bound should be -inf")
	}
	if !w.Upper.IsValue() || w.Upper.RawValue() != "m3" {
		t.Fatalf("upper bound should be m3, got %+v", w.Upper)
	}
}

func TestBoundRender(t *testing.T) {
	if got := NegInf().Render("min", "max"); got != "min" {
		t.Fatalf("neg inf should render min, got %q", got)
	}
	if got := PosInf().Render("min", "max"); got != "max" {
		t.Fatalf("pos inf should render max, got %q", got)
	}
	if got := Value("x").Render("min", "max"); got != "x" {
		t.Fatalf("value bound should render itself, got %q", got)
	}
}

func TestBuildPageForward(t *testing.T) {
	w := Cursor{Dir: Forward, Limit: 2}.Window()
	page := BuildPage([]string{"m1", "m2", "m3"}, 5, w)
	if !page.HasMore {
		t.Fatalf("expected has_more with limit+1 rows")
	}
	if !reflect.DeepEqual(page.Items, []string{"m1", "m2"}) {
		t.Fatalf("unexpected items %v", page.Items)
	}
	if page.Total != 5 {
		t.Fatalf("total should pass through, got %d", page.Total)
	}
}

func TestBuildPageBackwardReverses(t *testing.T) {
	w := Cursor{Dir: Backward, To: "m3", Limit: 2}.Window()
	// Store fetches descending: m2, m1.
	page := BuildPage([]string{"m2", "m1"}, 5, w)
	if page.HasMore {
		t.Fatalf("two rows at limit 2 means no more")
	}
	if !reflect.DeepEqual(page.Items, []string{"m1", "m2"}) {
		t.Fatalf("backward page must come back ascending, got %v", page.Items)
	}
}

func TestBuildPageExactLimit(t *testing.T) {
	w := Cursor{Dir: Forward, Limit: 3}.Window()
	page := BuildPage([]string{"a", "b", "c"}, 3, w)
	if page.HasMore {
		t.Fatalf("exactly limit rows means has_more=false")
	}
	page = BuildPage([]string{"a", "b", "c", "d"}, 4, w)
	if !page.HasMore || len(page.Items) != 3 {
		t.Fatalf("limit+1 rows means has_more=true and truncation, got %v", page.Items)
	}
}

func TestBuildPageEmpty(t *testing.T) {
	w := Cursor{Dir: Forward, Limit: 10}.Window()
	page := BuildPage[string](nil, 7, w)
	if page.Items == nil || len(page.Items) != 0 {
		t.Fatalf("empty page must serialize as [], got %#v", page.Items)
	}
	if page.HasMore {
		t.Fatalf("empty window has no more")
	}
	if page.Total != 7 {
		t.Fatalf("total reflects the unwindowed collection")
	}
}

// Paging forward through five ids and then backward from the last cursor
// reconstructs the same sequence.
func TestRoundTripScenario(t *testing.T) {
	ids := []string{"m1", "m2", "m3", "m4", "m5"}

	fetch := func(w Window) []string {
		lower := w.Lower.Render("", "zz")
		upper := w.Upper.Render("", "zz")
		var rows []string
		if w.Ascending {
			for _, id := range ids {
				if id > lower && id < upper {
					rows = append(rows, id)
				}
			}
		} else {
			for i := len(ids) - 1; i >= 0; i-- {
				if ids[i] > lower && ids[i] < upper {
					rows = append(rows, ids[i])
				}
			}
		}
		if len(rows) > w.Limit+1 {
			rows = rows[:w.Limit+1]
		}
		return rows
	}

	w := Cursor{Dir: Forward, Limit: 2}.Window()
	page := BuildPage(fetch(w), len(ids), w)
	if !reflect.DeepEqual(page.Items, []string{"m1", "m2"}) || !page.HasMore {
		t.Fatalf("first forward page wrong: %+v", page)
	}

	w = Cursor{Dir: Forward, From: "m2", Limit: 2}.Window()
	page = BuildPage(fetch(w), len(ids), w)
	if !reflect.DeepEqual(page.Items, []string{"m3", "m4"}) || !page.HasMore {
		t.Fatalf("second forward page wrong: %+v", page)
	}

	w = Cursor{Dir: Backward, To: "m3", Limit: 2}.Window()
	page = BuildPage(fetch(w), len(ids), w)
	if !reflect.DeepEqual(page.Items, []string{"m1", "m2"}) || page.HasMore {
		t.Fatalf("backward page wrong: %+v", page)
	}
}
