package redact

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddSecretRejectsShortValues(t *testing.T) {
	r := NewRegistry()
	r.AddSecret("short")
	assert.Empty(t, r.Snapshot())

	r.AddSecret("longenough1")
	assert.Len(t, r.Snapshot(), 1)
}

func TestAddSecretBoundary(t *testing.T) {
	r := NewRegistry()
	r.AddSecret("1234567") // length 7, rejected
	assert.Empty(t, r.Snapshot())

	r.AddSecret("12345678") // length 8, accepted
	assert.Len(t, r.Snapshot(), 1)
}

func TestRedactTextExactSecret(t *testing.T) {
	r := NewRegistry()
	r.AddSecret("supersecretvalue")

	got := r.RedactText("token is supersecretvalue in the log")
	assert.Equal(t, "token is **** in the log", got)
}

func TestRedactTextIsIdempotent(t *testing.T) {
	r := NewRegistry()
	r.AddSecret("supersecretvalue")

	once := r.RedactText("token is supersecretvalue in the log")
	twice := r.RedactText(once)
	assert.Equal(t, once, twice)
}

func TestRedactTextHash(t *testing.T) {
	r := NewRegistry()
	r.AddSecret("supersecretvalue")

	var hash string
	for _, h := range r.Snapshot() {
		hash = h
	}
	got := r.RedactText("digest=" + hash)
	assert.Equal(t, "digest=****", got)
}

func TestStructuredSecretRequiresKeyContext(t *testing.T) {
	r := NewRegistry()
	r.AddStructuredSecret(StructuredSecret{
		Value:             "abcdef1234567890",
		Keys:              []string{"password"},
		RequireKeyContext: true,
	})

	unrelated := r.RedactText("random text containing abcdef1234567890 with no key")
	assert.Contains(t, unrelated, "abcdef1234567890", "value should survive without key context")

	withKey := r.RedactText(`password=abcdef1234567890`)
	assert.NotContains(t, withKey, "abcdef1234567890")
}

func TestStructuredSecretContextPattern(t *testing.T) {
	r := NewRegistry()
	r.AddStructuredSecret(StructuredSecret{
		Value:             "abcdef1234567890",
		ContextPattern:    "DATABASE_URL",
		RequireKeyContext: true,
	})

	got := r.RedactText("DATABASE_URL seen near abcdef1234567890")
	assert.NotContains(t, got, "abcdef1234567890")
}

func TestSetDisabledPassesThrough(t *testing.T) {
	r := NewRegistry()
	r.AddSecret("supersecretvalue")
	r.SetDisabled(true)

	got := r.RedactText("token is supersecretvalue")
	assert.Equal(t, "token is supersecretvalue", got)
}

func TestSnapshotNeverLeaksPlaintext(t *testing.T) {
	r := NewRegistry()
	r.AddSecret("supersecretvalue")

	for _, s := range r.Snapshot() {
		assert.NotEqual(t, "supersecretvalue", s)
	}
}

func TestWriterBuffersUntilNewline(t *testing.T) {
	var out strings.Builder
	r := NewRegistry()
	r.AddSecret("supersecretvalue")

	w := NewWriter(&out, r)
	n, err := w.Write([]byte("partial without a newline containing supersecretvalue"))
	assert.Nil(t, err)
	assert.Equal(t, len("partial without a newline containing supersecretvalue"), n)
	assert.Empty(t, out.String(), "nothing should be forwarded before a newline or flush")

	assert.Nil(t, w.Flush())
	assert.Equal(t, "partial without a newline containing ****", out.String())
}

func TestWriterForwardsCompleteLines(t *testing.T) {
	var out strings.Builder
	r := NewRegistry()
	r.AddSecret("supersecretvalue")

	w := NewWriter(&out, r)
	_, err := w.Write([]byte("line one has supersecretvalue\nline two is clean\n"))
	assert.Nil(t, err)
	assert.Equal(t, "line one has ****\nline two is clean\n", out.String())
}

func TestWriterPassesThroughInvalidUTF8(t *testing.T) {
	var out strings.Builder
	r := NewRegistry()
	r.AddSecret("supersecretvalue")

	w := NewWriter(&out, r)
	invalid := []byte("bad \xff\xfe supersecretvalue line\n")
	_, err := w.Write(invalid)
	assert.Nil(t, err)
	assert.Equal(t, string(invalid), out.String())
}
