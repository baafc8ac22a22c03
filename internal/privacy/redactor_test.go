package privacy

import (
	"context"
	"testing"
)

func newTestRedactor(knownValues ...string) *Redactor {
	return NewRedactor(nil, knownValues, nil, nil)
}

func TestRedactBasicScenario(t *testing.T) {
	ctx := context.Background()
	r := newTestRedactor("John")

	text := "Contact John at john@example.com or 555-123-4567"
	redacted, meta, err := r.Redact(ctx, text, "s1")
	if err != nil {
		t.Fatalf("Redact failed: %v", err)
	}

	want := "Contact [PERSON_1] at [EMAIL_1] or [PHONE_1]"
	if redacted != want {
		t.Errorf("redacted = %q, want %q", redacted, want)
	}
	if meta.Method != "pattern" {
		t.Errorf("method = %q, want pattern", meta.Method)
	}
	if len(meta.Redactions) != 3 {
		t.Errorf("redactions = %d, want 3", len(meta.Redactions))
	}
	if got := meta.Redactions["EMAIL_1"].Original; got != "john@example.com" {
		t.Errorf("EMAIL_1 original = %q", got)
	}

	restored, err := r.Restore(ctx, redacted, "s1")
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if restored != text {
		t.Errorf("restored = %q, want %q", restored, text)
	}
}

func TestRedactCategories(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		text string
		want string
	}{
		{"email", "reach me at jane.doe+x@mail.co", "reach me at [EMAIL_1]"},
		{"phone", "call 555-123-4567 today", "call [PHONE_1] today"},
		{"ssn", "ssn is 123-45-6789", "ssn is [SSN_1]"},
		{"credit_card", "card 4111-1111-1111-1111 on file", "card [CREDIT_CARD_1] on file"},
		{"ip_address", "from 192.168.1.10 last night", "from [IP_ADDRESS_1] last night"},
		{"date_of_birth", "born 01/15/1990 in town", "born [DOB_1] in town"},
		{"person", "ask Jane Smith about it", "ask [PERSON_1] about it"},
		{"address", "lives at 123 main Street", "lives at [ADDRESS_1]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRedactor()
			redacted, _, err := r.Redact(ctx, tt.text, "s1")
			if err != nil {
				t.Fatalf("Redact failed: %v", err)
			}
			if redacted != tt.want {
				t.Errorf("redacted = %q, want %q", redacted, tt.want)
			}
		})
	}
}

func TestRedactStableTokens(t *testing.T) {
	ctx := context.Background()
	r := newTestRedactor()

	first, _, err := r.Redact(ctx, "mail a@x.com", "s1")
	if err != nil {
		t.Fatalf("Redact failed: %v", err)
	}
	second, _, err := r.Redact(ctx, "again a@x.com", "s1")
	if err != nil {
		t.Fatalf("Redact failed: %v", err)
	}
	if first != "mail [EMAIL_1]" || second != "again [EMAIL_1]" {
		t.Errorf("same value minted different tokens: %q, %q", first, second)
	}

	// A repeated value inside one call also reuses its token.
	both, _, err := r.Redact(ctx, "a@x.com and a@x.com", "s1")
	if err != nil {
		t.Fatalf("Redact failed: %v", err)
	}
	if both != "[EMAIL_1] and [EMAIL_1]" {
		t.Errorf("redacted = %q", both)
	}
}

func TestRedactCounterMonotonic(t *testing.T) {
	ctx := context.Background()
	r := newTestRedactor()

	redacted, _, err := r.Redact(ctx, "a@x.com then b@x.com then c@x.com", "s1")
	if err != nil {
		t.Fatalf("Redact failed: %v", err)
	}
	want := "[EMAIL_1] then [EMAIL_2] then [EMAIL_3]"
	if redacted != want {
		t.Errorf("redacted = %q, want %q", redacted, want)
	}

	stats, err := r.Stats(ctx, "s1")
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.TotalRedactions != 3 || stats.ByType["EMAIL"] != 3 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestRedactSessionIsolation(t *testing.T) {
	ctx := context.Background()
	r := newTestRedactor()

	a, _, err := r.Redact(ctx, "a@x.com", "session-a")
	if err != nil {
		t.Fatalf("Redact failed: %v", err)
	}
	b, _, err := r.Redact(ctx, "b@x.com", "session-b")
	if err != nil {
		t.Fatalf("Redact failed: %v", err)
	}

	// Each session starts its own counter.
	if a != "[EMAIL_1]" || b != "[EMAIL_1]" {
		t.Errorf("redacted = %q, %q", a, b)
	}

	// A token restores only within its own session.
	restored, err := r.Restore(ctx, "[EMAIL_1]", "session-b")
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if restored != "b@x.com" {
		t.Errorf("restored = %q, want b@x.com", restored)
	}
}

func TestRedactIdempotent(t *testing.T) {
	ctx := context.Background()
	r := newTestRedactor("John")

	redacted, _, err := r.Redact(ctx, "Contact John at john@example.com or 555-123-4567", "s1")
	if err != nil {
		t.Fatalf("Redact failed: %v", err)
	}
	again, meta, err := r.Redact(ctx, redacted, "s1")
	if err != nil {
		t.Fatalf("Redact failed: %v", err)
	}
	if again != redacted {
		t.Errorf("re-redaction changed text: %q -> %q", redacted, again)
	}
	if len(meta.Redactions) != 0 {
		t.Errorf("re-redaction minted %d tokens", len(meta.Redactions))
	}
}

func TestRedactEmptyInput(t *testing.T) {
	ctx := context.Background()
	r := newTestRedactor()

	redacted, meta, err := r.Redact(ctx, "", "s1")
	if err != nil {
		t.Fatalf("Redact failed: %v", err)
	}
	if redacted != "" || len(meta.Redactions) != 0 {
		t.Errorf("redacted = %q, redactions = %d", redacted, len(meta.Redactions))
	}

	// No session state is created for empty input.
	stats, err := r.Stats(ctx, "s1")
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.TotalRedactions != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestRedactOverlapResolution(t *testing.T) {
	ctx := context.Background()

	t.Run("known value beats pattern", func(t *testing.T) {
		r := newTestRedactor("Jane Smith")
		redacted, meta, err := r.Redact(ctx, "ask Jane Smith about it", "s1")
		if err != nil {
			t.Fatalf("Redact failed: %v", err)
		}
		if redacted != "ask [PERSON_1] about it" {
			t.Errorf("redacted = %q", redacted)
		}
		if meta.Redactions["PERSON_1"].Description != "Known person name" {
			t.Errorf("description = %q", meta.Redactions["PERSON_1"].Description)
		}
	})

	t.Run("ssn not claimed by phone", func(t *testing.T) {
		r := newTestRedactor()
		redacted, _, err := r.Redact(ctx, "id 123-45-6789 end", "s1")
		if err != nil {
			t.Fatalf("Redact failed: %v", err)
		}
		if redacted != "id [SSN_1] end" {
			t.Errorf("redacted = %q", redacted)
		}
	})

	t.Run("earlier category wins overlap", func(t *testing.T) {
		// The name pattern claims "Main Street" before the address
		// pattern runs, leaving the house number in the clear.
		r := newTestRedactor()
		redacted, _, err := r.Redact(ctx, "lives at 123 Main Street", "s1")
		if err != nil {
			t.Fatalf("Redact failed: %v", err)
		}
		if redacted != "lives at 123 [PERSON_1]" {
			t.Errorf("redacted = %q", redacted)
		}
	})
}

func TestClearSession(t *testing.T) {
	ctx := context.Background()
	r := newTestRedactor()

	redacted, _, err := r.Redact(ctx, "a@x.com", "s1")
	if err != nil {
		t.Fatalf("Redact failed: %v", err)
	}
	if err := r.ClearSession(ctx, "s1"); err != nil {
		t.Fatalf("ClearSession failed: %v", err)
	}

	stats, err := r.Stats(ctx, "s1")
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.TotalRedactions != 0 {
		t.Errorf("stats after clear = %+v", stats)
	}

	// Tokens from the cleared session no longer restore.
	restored, err := r.Restore(ctx, redacted, "s1")
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if restored != redacted {
		t.Errorf("restored = %q, want %q", restored, redacted)
	}

	// Clearing an unknown session is a no-op.
	if err := r.ClearSession(ctx, "missing"); err != nil {
		t.Errorf("ClearSession(missing) = %v", err)
	}
}

func TestExportMap(t *testing.T) {
	ctx := context.Background()
	r := newTestRedactor()

	if _, _, err := r.Redact(ctx, "a@x.com and 555-123-4567", "s1"); err != nil {
		t.Fatalf("Redact failed: %v", err)
	}

	record, err := r.ExportMap(ctx, "s1")
	if err != nil {
		t.Fatalf("ExportMap failed: %v", err)
	}
	if record.SessionID != "s1" {
		t.Errorf("session = %q", record.SessionID)
	}
	if record.RedactionMap["EMAIL_1"] != "a@x.com" || record.RedactionMap["PHONE_1"] != "555-123-4567" {
		t.Errorf("map = %+v", record.RedactionMap)
	}
	if record.Stats.TotalRedactions != 2 {
		t.Errorf("stats = %+v", record.Stats)
	}
}

func TestRestoreUnknownToken(t *testing.T) {
	ctx := context.Background()
	r := newTestRedactor()

	if _, _, err := r.Redact(ctx, "a@x.com", "s1"); err != nil {
		t.Fatalf("Redact failed: %v", err)
	}

	// Unknown tokens stay verbatim.
	restored, err := r.Restore(ctx, "[EMAIL_1] and [EMAIL_9]", "s1")
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if restored != "a@x.com and [EMAIL_9]" {
		t.Errorf("restored = %q", restored)
	}
}
