package money

import "testing"

func TestParse(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "1.8", want: "1.8000"},
		{in: "-5.00", want: "-5.0000"},
		{in: " 0.0001 ", want: "0.0001"},
		{in: "10.12340", want: "10.1234"},
		{in: "0.00001", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, c := range cases {
		got, err := Parse(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("Parse(%q): expected error, got %s", c.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("Parse(%q): unexpected error: %v", c.in, err)
			continue
		}
		if Format(got) != c.want {
			t.Errorf("Parse(%q) = %s, want %s", c.in, Format(got), c.want)
		}
	}
}

func TestRoundHalfAwayFromZero(t *testing.T) {
	if got := Format(Round(MustParse("0.0001").Div(MustParse("2")))); got != "0.0001" {
		t.Errorf("expected 0.00005 to round up to 0.0001, got %s", got)
	}
	if got := Format(Round(MustParse("-0.0001").Div(MustParse("2")))); got != "-0.0001" {
		t.Errorf("expected -0.00005 to round to -0.0001, got %s", got)
	}
}
