// Copyright 2024-2026 Aiku AI

package textfilter

import (
	"testing"

	"github.com/rs/zerolog"
)

func newT(rules ...string) *Transform {
	return NewTransform(rules, zerolog.Nop())
}

func TestTransform_LiteralRemoval(t *testing.T) {
	t.Parallel()
	tr := newT("JOIN NOW")
	got := tr.Decide("Hello JOIN NOW world").Rewritten
	if got != "Hello  world" {
		t.Errorf("got %q", got)
	}
}

func TestTransform_RegexRemoval(t *testing.T) {
	t.Parallel()
	tr := newT(`/https?:\/\/\S+/`)
	got := tr.Decide("see https://example.com now").Rewritten
	if got != "see  now" {
		t.Errorf("got %q", got)
	}
}

func TestTransform_LiteralReplacement(t *testing.T) {
	t.Parallel()
	tr := newT("old->new")
	got := tr.Decide("the old way").Rewritten
	if got != "the new way" {
		t.Errorf("got %q", got)
	}
}

func TestTransform_RegexReplacement(t *testing.T) {
	t.Parallel()
	tr := newT(`/ch(annel)?/->group`)
	got := tr.Decide("my channel and my ch").Rewritten
	if got != "my group and my group" {
		t.Errorf("got %q", got)
	}
}

func TestTransform_ReplacementSplitsOnFirstArrow(t *testing.T) {
	t.Parallel()
	tr := newT("a->b->c")
	got := tr.Decide("a").Rewritten
	if got != "b->c" {
		t.Errorf("got %q", got)
	}
}

func TestTransform_InvalidRegexSkippedOthersApply(t *testing.T) {
	t.Parallel()
	tr := newT(`/[unclosed/`, "drop me")
	if n := tr.RuleCount(); n != 1 {
		t.Errorf("RuleCount = %d, want 1 (invalid regex skipped)", n)
	}
	got := tr.Decide("please drop me now").Rewritten
	if got != "please  now" {
		t.Errorf("got %q", got)
	}
}

func TestTransform_CaseInsensitivePatterns(t *testing.T) {
	t.Parallel()
	tr := newT("/promo/")
	got := tr.Decide("big PROMO day").Rewritten
	if got != "big  day" {
		t.Errorf("got %q", got)
	}
}

func TestTransform_StableAcrossRepeatedCalls(t *testing.T) {
	t.Parallel()
	tr := newT("x->y", "/z+/")
	input := "x and zzz and x"
	first := tr.Decide(input).Rewritten
	for i := 0; i < 10; i++ {
		if got := tr.Decide(input).Rewritten; got != first {
			t.Fatalf("unstable output: %q vs %q", got, first)
		}
	}
}

func TestTransform_EmptyInput(t *testing.T) {
	t.Parallel()
	d := newT("a").Decide("")
	if !d.Admit || d.Rewritten != "" {
		t.Errorf("got %+v", d)
	}
}

func TestTransform_AlwaysAdmits(t *testing.T) {
	t.Parallel()
	if d := newT("everything").Decide("everything"); !d.Admit {
		t.Error("transform must admit even fully filtered text")
	}
}

func TestBuiltin_PromoLineRemovedEntirely(t *testing.T) {
	t.Parallel()
	tr := newT()
	input := "Great signal!\nDeposit Code: TarekTeam 50% Deposit bounus\nEnjoy"
	got := tr.Decide(input).Rewritten
	if got != "Great signal!\nEnjoy" {
		t.Errorf("got %q", got)
	}
}

func TestBuiltin_RegisterHereBlockReplaced(t *testing.T) {
	t.Parallel()
	tr := newT()
	input := "➪ REGISTER HERE NOW إنــضــم إلـى فــريقـي join us"
	got := tr.Decide(input).Rewritten
	if got != "➪ Use MTG 1 Step If Loss" {
		t.Errorf("got %q", got)
	}
}

func TestBuiltin_MarkdownUnwrapped(t *testing.T) {
	t.Parallel()
	tr := newT()
	got := tr.Decide("Check **this** and `that` [link](https://x.example)").Rewritten
	if got != "Check this and that link" {
		t.Errorf("got %q", got)
	}
}

func TestBuiltin_HandleRewritten(t *testing.T) {
	t.Parallel()
	tr := newT()
	got := tr.Decide("contact @tarekrash3d today").Rewritten
	if got != "contact @Gazew_07 today" {
		t.Errorf("got %q", got)
	}
}

func TestClearRules_KeepsBuiltins(t *testing.T) {
	t.Parallel()
	tr := newT("custom")
	tr.ClearRules()
	if n := tr.RuleCount(); n != 0 {
		t.Errorf("RuleCount = %d after clear", n)
	}
	got := tr.Decide("custom and @tarekrash3d").Rewritten
	if got != "custom and @Gazew_07" {
		t.Errorf("builtins must survive clear, got %q", got)
	}
}

func TestAddRules_AfterClear(t *testing.T) {
	t.Parallel()
	tr := newT("first")
	tr.ClearRules()
	tr.AddRules([]string{"second"})
	got := tr.Decide("first second").Rewritten
	if got != "first" {
		t.Errorf("got %q", got)
	}
}
