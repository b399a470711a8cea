package usecase

import (
	"testing"

	"github.com/yuhao-he/voice-input-assistant/internal/domain"
)

func TestAssemblerFinalIgnoresUnconfirmedTail(t *testing.T) {
	t.Parallel()

	asm := newTranscriptAssembler()
	asm.Add(domain.TranscriptEvent{Kind: domain.TranscriptKindPartial, Text: "hello"})
	asm.Add(domain.TranscriptEvent{Kind: domain.TranscriptKindFinal, Text: "hello world"})
	asm.Add(domain.TranscriptEvent{Kind: domain.TranscriptKindPartial, Text: "and more"})

	if got := asm.Final(); got != "hello world" {
		t.Fatalf("unexpected final transcript: %q", got)
	}
	if got := asm.Interim(); got != "hello world and more" {
		t.Fatalf("unexpected interim transcript: %q", got)
	}
}

func TestAssemblerPartialReplacesTail(t *testing.T) {
	t.Parallel()

	asm := newTranscriptAssembler()
	asm.Add(domain.TranscriptEvent{Kind: domain.TranscriptKindPartial, Text: "he"})
	asm.Add(domain.TranscriptEvent{Kind: domain.TranscriptKindPartial, Text: "hello th"})
	asm.Add(domain.TranscriptEvent{Kind: domain.TranscriptKindPartial, Text: "hello there"})

	if got := asm.Interim(); got != "hello there" {
		t.Fatalf("partials must replace the tail, got %q", got)
	}
	if got := asm.Final(); got != "" {
		t.Fatalf("unconfirmed speech must not appear in final, got %q", got)
	}
}

func TestAssemblerJoinsFinalSegments(t *testing.T) {
	t.Parallel()

	asm := newTranscriptAssembler()
	asm.Add(domain.TranscriptEvent{Kind: domain.TranscriptKindFinal, Text: "first sentence."})
	asm.Add(domain.TranscriptEvent{Kind: domain.TranscriptKindPartial, Text: "second"})
	asm.Add(domain.TranscriptEvent{Kind: domain.TranscriptKindFinal, Text: "second sentence."})

	if got := asm.Final(); got != "first sentence. second sentence." {
		t.Fatalf("unexpected joined finals: %q", got)
	}
	if got := asm.Interim(); got != "first sentence. second sentence." {
		t.Fatalf("final must clear the pending tail, got %q", got)
	}
}

func TestAssemblerIgnoresBlankEvents(t *testing.T) {
	t.Parallel()

	asm := newTranscriptAssembler()
	asm.Add(domain.TranscriptEvent{Kind: domain.TranscriptKindPartial, Text: "   "})
	asm.Add(domain.TranscriptEvent{Kind: domain.TranscriptKindFinal, Text: ""})

	if got := asm.Final(); got != "" {
		t.Fatalf("expected empty final, got %q", got)
	}
	if got := asm.Interim(); got != "" {
		t.Fatalf("expected empty interim, got %q", got)
	}
}
