package risk

import "testing"

func TestAssess(t *testing.T) {
	cases := []struct {
		name    string
		signals []Signal
		want    Level
	}{
		{"no data", nil, LevelLow},
		{"stable", []Signal{{MoodLevel: 8, Mode: "green"}, {MoodLevel: 7, Mode: "green"}}, LevelLow},
		{"dipping", []Signal{{MoodLevel: 5, Mode: "green"}, {MoodLevel: 5, Mode: "yellow"}}, LevelModerate},
		{"low average", []Signal{{MoodLevel: 2, Mode: "green"}, {MoodLevel: 3, Mode: "green"}}, LevelHigh},
		{"safety flag wins", []Signal{{MoodLevel: 9, Mode: "green", SafetyFlag: true}}, LevelHigh},
		{"red mode wins", []Signal{{MoodLevel: 9, Mode: "red"}}, LevelHigh},
	}
	for _, c := range cases {
		if got := Assess(c.signals); got != c.want {
			t.Fatalf("%s: got %s want %s", c.name, got, c.want)
		}
	}
}

func TestScore(t *testing.T) {
	if Score(LevelLow) != 1 || Score(LevelModerate) != 2 || Score(LevelHigh) != 3 {
		t.Fatal("score mapping drifted")
	}
}
