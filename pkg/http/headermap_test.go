package http

import (
	"reflect"
	"testing"
)

func TestAddGetRemove(t *testing.T) {
	h := NewHeaderMap()
	h.AddLowerCase("x-custom", "one")

	if got := h.Get("x-custom"); got != "one" {
		t.Fatalf("Get = %q, want %q", got, "one")
	}
	if !h.Has("x-custom") {
		t.Fatal("Has = false after add")
	}

	h.Remove("x-custom")
	if h.Has("x-custom") {
		t.Fatal("Has = true after remove")
	}
	if got := h.Get("x-custom"); got != "" {
		t.Fatalf("Get after remove = %q, want empty", got)
	}
}

func TestInlineSlotReplacesValue(t *testing.T) {
	h := NewHeaderMap()
	h.AddLowerCase(HeaderContentLength, "10")
	h.AddLowerCase(HeaderContentLength, "20")

	if got := h.Get(HeaderContentLength); got != "20" {
		t.Fatalf("Get = %q, want %q", got, "20")
	}
	if got := h.Len(); got != 1 {
		t.Fatalf("Len = %d, want 1 (inline slot reused)", got)
	}
}

func TestInlineSlotReuseAfterRemove(t *testing.T) {
	h := NewHeaderMap()
	h.AddLowerCase(HeaderPath, "/a")
	h.Remove(HeaderPath)
	h.AddLowerCase(HeaderPath, "/b")

	if got := h.Get(HeaderPath); got != "/b" {
		t.Fatalf("Get = %q, want %q", got, "/b")
	}
}

func TestDynamicDuplicatesPreserved(t *testing.T) {
	h := NewHeaderMap()
	h.AddLowerCase("x-tag", "a")
	h.AddLowerCase("x-other", "x")
	h.AddLowerCase("x-tag", "b")

	var keys, values []string
	h.Iterate(func(key, value string) {
		keys = append(keys, key)
		values = append(values, value)
	})

	wantKeys := []string{"x-tag", "x-other", "x-tag"}
	wantValues := []string{"a", "x", "b"}
	if !reflect.DeepEqual(keys, wantKeys) || !reflect.DeepEqual(values, wantValues) {
		t.Fatalf("iterate = %v/%v, want %v/%v", keys, values, wantKeys, wantValues)
	}

	// Get returns the first value.
	if got := h.Get("x-tag"); got != "a" {
		t.Fatalf("Get = %q, want first value %q", got, "a")
	}

	// Remove drops every duplicate.
	h.Remove("x-tag")
	if h.Has("x-tag") {
		t.Fatal("Has = true after removing duplicates")
	}
	if got := h.Len(); got != 1 {
		t.Fatalf("Len = %d, want 1", got)
	}
}

func TestHostAliasesAuthority(t *testing.T) {
	h := NewHeaderMap()
	h.AddLowerCase(HeaderHostLegacy, "backend.example.com")

	if got := h.Get(HeaderAuthority); got != "backend.example.com" {
		t.Fatalf("Get(:authority) = %q, want %q", got, "backend.example.com")
	}
	if got := h.Get(HeaderHostLegacy); got != "backend.example.com" {
		t.Fatalf("Get(host) = %q, want %q", got, "backend.example.com")
	}

	h.Remove(HeaderHostLegacy)
	if h.Has(HeaderAuthority) {
		t.Fatal("removing via alias must clear the slot")
	}
}

func TestByteSize(t *testing.T) {
	h := NewHeaderMap()
	h.AddLowerCase("ab", "cd")       // 4
	h.AddLowerCase(HeaderPath, "/x") // 5 + 2

	if got := h.ByteSize(); got != 11 {
		t.Fatalf("ByteSize = %d, want 11", got)
	}
}

func TestInsertionOrderWithInlineAndDynamic(t *testing.T) {
	h := NewHeaderMap()
	h.AddLowerCase("x-first", "1")
	h.AddLowerCase(HeaderContentType, "text/plain")
	h.AddLowerCase("x-last", "3")

	var keys []string
	h.Iterate(func(key, _ string) { keys = append(keys, key) })

	want := []string{"x-first", HeaderContentType, "x-last"}
	if !reflect.DeepEqual(keys, want) {
		t.Fatalf("order = %v, want %v", keys, want)
	}
}

func TestClone(t *testing.T) {
	h := NewHeaderMapFromPairs("x-a", "1", HeaderPath, "/p", "x-a", "2")
	c := h.Clone()

	c.Set("x-a", "changed")
	if got := h.Get("x-a"); got != "1" {
		t.Fatalf("clone mutation leaked into original: %q", got)
	}
	if got := c.Get(HeaderPath); got != "/p" {
		t.Fatalf("clone Get(:path) = %q, want %q", got, "/p")
	}
}
