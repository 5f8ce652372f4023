package sqlstore

import (
	"errors"
	"testing"
)

func TestRebind(t *testing.T) {
	pg := &txn{dialect: Dialect{Placeholder: DollarPlaceholder}}
	if got := pg.rebind("SELECT a FROM t WHERE a = ? AND b IN (?, ?)"); got != "SELECT a FROM t WHERE a = $1 AND b IN ($2, $3)" {
		t.Fatalf("unexpected postgres rebind %q", got)
	}
	lite := &txn{dialect: Dialect{Placeholder: QuestionPlaceholder}}
	if got := lite.rebind("SELECT ? , ?"); got != "SELECT ? , ?" {
		t.Fatalf("sqlite query should be untouched, got %q", got)
	}
}

func TestInList(t *testing.T) {
	cases := map[int]string{0: "(NULL)", 1: "(?)", 3: "(?, ?, ?)"}
	for n, want := range cases {
		if got := inList(n); got != want {
			t.Fatalf("inList(%d)=%q want %q", n, got, want)
		}
	}
}

func TestChunks(t *testing.T) {
	if got := chunks([]int{}, 2); got != nil {
		t.Fatalf("expected nil chunks for empty input, got %v", got)
	}
	got := chunks([]int{1, 2, 3, 4, 5}, 2)
	if len(got) != 3 || len(got[0]) != 2 || len(got[2]) != 1 || got[2][0] != 5 {
		t.Fatalf("unexpected chunks %v", got)
	}
	exact := chunks([]string{"a", "b"}, 2)
	if len(exact) != 1 {
		t.Fatalf("expected a single chunk, got %v", exact)
	}
}

func TestNewFillsDialectDefaults(t *testing.T) {
	s := New(nil, Dialect{Name: "bare"})
	if s.Dialect().Placeholder(4) != "?" {
		t.Fatalf("expected question placeholder default")
	}
	if s.Dialect().UniqueViolation(errors.New("x")) || s.Dialect().ForeignKeyViolation(errors.New("x")) {
		t.Fatalf("expected violation predicates to default to false")
	}
}
