package memory

import (
	"context"
	"errors"
	"testing"
)

func seedScored(t *testing.T, e *Engine, content string, v WeightVector) Message {
	t.Helper()
	msg, err := e.AppendMessage("s1", "user", content)
	if err != nil {
		t.Fatalf("AppendMessage error: %v", err)
	}
	if _, err := e.SaveWeight("s1", msg.ID, v); err != nil {
		t.Fatalf("SaveWeight error: %v", err)
	}
	return msg
}

func TestSearchGateDeclines(t *testing.T) {
	e := newTestEngine(t)
	classifier := &fakeClassifier{intent: &SearchIntent{NeedsSearch: false, Reasoning: "greeting"}}
	filter := &fakeFilter{}
	s := NewSearcher(e, classifier, filter, 10)

	got, err := s.Search(context.Background(), "s1", "hello!", nil, 20)
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if got != nil {
		t.Errorf("got = %v, want nil to mean no search performed", got)
	}
	if filter.calls != 0 {
		t.Error("relevance filter must not run when the gate declines")
	}
}

func TestSearchNoCandidatesSkipsFilter(t *testing.T) {
	e := newTestEngine(t)
	seedScored(t, e, "minor detail", WeightVector{EmotionalImpact: 3, MemoryType: TypeConversational})

	classifier := &fakeClassifier{intent: &SearchIntent{NeedsSearch: true, Query: "anything"}}
	filter := &fakeFilter{}
	s := NewSearcher(e, classifier, filter, 10)

	got, err := s.Search(context.Background(), "s1", "remember that thing?", nil, 20)
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if got == nil {
		t.Fatal("got nil, want empty slice: searched but nothing cleared the floor")
	}
	if len(got) != 0 {
		t.Errorf("len = %d, want 0", len(got))
	}
	if filter.calls != 0 {
		t.Error("relevance filter must be skipped entirely for zero candidates")
	}
}

func TestSearchSelectsInFilterOrder(t *testing.T) {
	e := newTestEngine(t)
	a := seedScored(t, e, "first memory", WeightVector{EmotionalImpact: 10, PersonalSignificance: 10, MemoryType: TypeEmotional})
	b := seedScored(t, e, "second memory", WeightVector{EmotionalImpact: 10, ContextualImportance: 10, PersonalSignificance: 5, MemoryType: TypeFactual})
	c := seedScored(t, e, "third memory", WeightVector{RelationshipRelevance: 10, PersonalSignificance: 10, ContextualImportance: 2, MemoryType: TypeRelational})

	// Candidates arrive ranked: b (25), c (22), a (20). The filter picks
	// indices 2 and 0, so the result is a then b, in its order.
	classifier := &fakeClassifier{intent: &SearchIntent{NeedsSearch: true, Query: "memories"}}
	filter := &fakeFilter{indices: []int{2, 0}}
	s := NewSearcher(e, classifier, filter, 10)

	got, err := s.Search(context.Background(), "s1", "what do you remember?", nil, 20)
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Message.ID != a.ID || got[1].Message.ID != b.ID {
		t.Errorf("order = %s, %s; want %s, %s", got[0].Message.ID, got[1].Message.ID, a.ID, b.ID)
	}
	_ = c

	if filter.query != "memories" {
		t.Errorf("filter query = %q, want classifier query", filter.query)
	}
	if len(filter.docs) != 3 {
		t.Errorf("filter saw %d candidates, want 3", len(filter.docs))
	}
}

func TestSearchDropsHallucinatedIndices(t *testing.T) {
	e := newTestEngine(t)
	a := seedScored(t, e, "only memory", WeightVector{EmotionalImpact: 10, PersonalSignificance: 10, MemoryType: TypeEmotional})

	classifier := &fakeClassifier{intent: &SearchIntent{NeedsSearch: true, Query: "q"}}
	filter := &fakeFilter{indices: []int{5, -1, 0, 99}}
	s := NewSearcher(e, classifier, filter, 10)

	got, err := s.Search(context.Background(), "s1", "remember?", nil, 20)
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(got) != 1 || got[0].Message.ID != a.ID {
		t.Errorf("got %+v, want only the in-range candidate", got)
	}
}

func TestSearchCapsResults(t *testing.T) {
	e := newTestEngine(t)
	for i := 0; i < 15; i++ {
		seedScored(t, e, "memory", WeightVector{EmotionalImpact: 10, PersonalSignificance: 10, MemoryType: TypeEmotional})
	}

	indices := make([]int, 15)
	for i := range indices {
		indices[i] = i
	}
	classifier := &fakeClassifier{intent: &SearchIntent{NeedsSearch: true, Query: "q"}}
	filter := &fakeFilter{indices: indices}
	s := NewSearcher(e, classifier, filter, 10)

	got, err := s.Search(context.Background(), "s1", "remember?", nil, 20)
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(got) != 10 {
		t.Errorf("len = %d, want the configured cap of 10", len(got))
	}
}

func TestSearchFallsBackToUtteranceQuery(t *testing.T) {
	e := newTestEngine(t)
	seedScored(t, e, "memory", WeightVector{EmotionalImpact: 10, PersonalSignificance: 10, MemoryType: TypeEmotional})

	classifier := &fakeClassifier{intent: &SearchIntent{NeedsSearch: true, Query: ""}}
	filter := &fakeFilter{indices: []int{0}}
	s := NewSearcher(e, classifier, filter, 10)

	if _, err := s.Search(context.Background(), "s1", "the verbatim utterance", nil, 20); err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if filter.query != "the verbatim utterance" {
		t.Errorf("filter query = %q, want the utterance fallback", filter.query)
	}
}

func TestSearchPropagatesClassifierFailure(t *testing.T) {
	e := newTestEngine(t)
	genErr := errors.New("gate timeout")
	s := NewSearcher(e, &fakeClassifier{err: genErr}, &fakeFilter{}, 10)

	_, err := s.Search(context.Background(), "s1", "remember?", nil, 20)
	if !errors.Is(err, genErr) {
		t.Errorf("error = %v, want wrapped classifier error", err)
	}
}

func TestSearchPropagatesFilterFailure(t *testing.T) {
	e := newTestEngine(t)
	seedScored(t, e, "memory", WeightVector{EmotionalImpact: 10, PersonalSignificance: 10, MemoryType: TypeEmotional})

	filterErr := errors.New("filter down")
	s := NewSearcher(e, &fakeClassifier{intent: &SearchIntent{NeedsSearch: true, Query: "q"}}, &fakeFilter{err: filterErr}, 10)

	_, err := s.Search(context.Background(), "s1", "remember?", nil, 20)
	if !errors.Is(err, filterErr) {
		t.Errorf("error = %v, want wrapped filter error", err)
	}
}

func TestSearchExcludesRecentMessages(t *testing.T) {
	e := newTestEngine(t)
	recent := seedScored(t, e, "just said", WeightVector{EmotionalImpact: 10, PersonalSignificance: 10, MemoryType: TypeEmotional})
	older := seedScored(t, e, "older memory", WeightVector{EmotionalImpact: 10, ContextualImportance: 10, MemoryType: TypeFactual})

	classifier := &fakeClassifier{intent: &SearchIntent{NeedsSearch: true, Query: "q"}}
	filter := &fakeFilter{indices: []int{0}}
	s := NewSearcher(e, classifier, filter, 10)

	got, err := s.Search(context.Background(), "s1", "remember?", []string{recent.ID}, 20)
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(got) != 1 || got[0].Message.ID != older.ID {
		t.Errorf("got %+v, want only the non-recent candidate", got)
	}
}

// TestSearchEndToEndThreshold walks the back-reference scenario: a highly
// significant injury memory clears the floor and is selected, while an
// unrelated low-significance row is pruned before the filter ever runs.
func TestSearchEndToEndThreshold(t *testing.T) {
	e := newTestEngine(t)
	injury := seedScored(t, e, "I tore my ACL playing soccer, surgery is scheduled",
		WeightVector{EmotionalImpact: 9, RelationshipRelevance: 5, PersonalSignificance: 9, ContextualImportance: 9, MemoryType: TypeFactual}) // total 32
	seedScored(t, e, "we talked about the weather",
		WeightVector{EmotionalImpact: 4, RelationshipRelevance: 4, PersonalSignificance: 4, ContextualImportance: 3, MemoryType: TypeConversational}) // total 15

	classifier := &fakeClassifier{intent: &SearchIntent{NeedsSearch: true, Query: "ACL injury"}}
	filter := &fakeFilter{indices: []int{0}}
	s := NewSearcher(e, classifier, filter, 10)

	got, err := s.Search(context.Background(), "s1", "Like I told you last week about my ACL injury", nil, 20)
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(got) != 1 || got[0].Message.ID != injury.ID {
		t.Fatalf("got %+v, want the injury memory", got)
	}
	if got[0].TotalSignificance != 32 {
		t.Errorf("total = %d, want 32", got[0].TotalSignificance)
	}
	if len(filter.docs) != 1 {
		t.Errorf("filter saw %d candidates, want 1: the threshold prunes before the filter", len(filter.docs))
	}
}
