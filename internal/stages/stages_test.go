package stages_test

import (
	"testing"

	"loom/internal/stages"
)

func TestOrderIsStrictlyIncreasing(t *testing.T) {
	all := stages.All()
	if len(all) != 9 {
		t.Fatalf("expected 9 stages, got %d", len(all))
	}
	for i, desc := range all {
		if got := stages.Order(desc.Stage); got != i {
			t.Fatalf("Order(%s) = %d, want %d", desc.Stage, got, i)
		}
	}
	if all[0].Stage != stages.StoryOutline || all[len(all)-1].Stage != stages.Render {
		t.Fatalf("unexpected stage ordering: %v", all)
	}
}

func TestNextWalksTheFullPipeline(t *testing.T) {
	current := stages.StoryOutline
	count := 1
	for {
		next, ok := stages.Next(current)
		if !ok {
			break
		}
		if stages.Order(next) != stages.Order(current)+1 {
			t.Fatalf("Next(%s) = %s, not adjacent", current, next)
		}
		current = next
		count++
	}
	if current != stages.Render {
		t.Fatalf("pipeline ends at %s, want %s", current, stages.Render)
	}
	if count != len(stages.All()) {
		t.Fatalf("walked %d stages, want %d", count, len(stages.All()))
	}
}

func TestIsTerminal(t *testing.T) {
	if stages.IsTerminal(stages.StoryOutline) {
		t.Fatal("story outline must not be terminal")
	}
	if !stages.IsTerminal(stages.Render) {
		t.Fatal("render must be terminal")
	}
}

func TestFrom(t *testing.T) {
	tail := stages.From(stages.Images)
	want := []stages.Stage{stages.Images, stages.Audio, stages.BGM, stages.Motion, stages.Render}
	if len(tail) != len(want) {
		t.Fatalf("From(images) returned %v", tail)
	}
	for i, stage := range want {
		if tail[i] != stage {
			t.Fatalf("From(images)[%d] = %s, want %s", i, tail[i], stage)
		}
	}
}

func TestParse(t *testing.T) {
	cases := []struct {
		input string
		want  stages.Stage
		ok    bool
	}{
		{"retention_qa", stages.RetentionQA, true},
		{"RETENTION_QA", stages.RetentionQA, true},
		{"  images ", stages.Images, true},
		{"", "", false},
		{"mastering", "", false},
	}
	for _, tc := range cases {
		got, ok := stages.Parse(tc.input)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("Parse(%q) = %q, %v; want %q, %v", tc.input, got, ok, tc.want, tc.ok)
		}
	}
}

func TestUnknownStagePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for unknown stage")
		}
	}()
	stages.Order(stages.Stage("mastering"))
}
