package payments

import (
	"encoding/json"
	"testing"
)

func TestMoneyJSON(t *testing.T) {
	cases := []struct {
		in   string
		want Money
		out  string
	}{
		{`12.34`, 1234, `12.34`},
		{`"7.5"`, 750, `7.50`},
		{`0.1`, 10, `0.10`},
		{`10.004`, 1000, `10.00`},
		{`-3.2`, -320, `-3.20`},
		{`null`, 0, `0.00`},
	}
	for _, tc := range cases {
		var m Money
		if err := json.Unmarshal([]byte(tc.in), &m); err != nil {
			t.Fatalf("unmarshal %s: %v", tc.in, err)
		}
		if m != tc.want {
			t.Fatalf("unmarshal %s: got %d, want %d", tc.in, m, tc.want)
		}
		out, _ := json.Marshal(m)
		if string(out) != tc.out {
			t.Fatalf("marshal %d: got %s, want %s", m, out, tc.out)
		}
	}

	var m Money
	if err := json.Unmarshal([]byte(`"abc"`), &m); err == nil {
		t.Fatal("expected error for non-numeric amount")
	}
	for _, in := range []string{`5e16`, `"1000000000000.01"`, `-2e12`} {
		if err := json.Unmarshal([]byte(in), &m); err == nil {
			t.Fatalf("expected out of range error for %s", in)
		}
	}
	if err := json.Unmarshal([]byte(`1000000000000`), &m); err != nil || m != MaxAmount {
		t.Fatalf("upper bound must parse: %d %v", m, err)
	}
}

func TestStatusFor(t *testing.T) {
	total := Money(99000)
	cases := map[Money]PaymentStatus{
		0:      StatusUnpaid,
		50000:  StatusPartially,
		98999:  StatusPartially,
		99000:  StatusPaid,
		120000: StatusPaid,
	}
	for credit, want := range cases {
		if got := StatusFor(credit, total); got != want {
			t.Fatalf("StatusFor(%d): got %s, want %s", credit, got, want)
		}
	}
}
