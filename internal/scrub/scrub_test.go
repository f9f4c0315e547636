package scrub_test

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/CourageToGroww/secret-keeper/internal/scrub"
)

func TestScrubRawAndMultipleSecrets(t *testing.T) {
	t.Parallel()

	s := scrub.New(map[string]string{
		"API": "abcdef",
		"DB":  "postgres://u:p@h/d",
	})

	in := "got key abcdef to access postgres://u:p@h/d today"
	want := "got key [REDACTED:API] to access [REDACTED:DB] today"
	assert.Equal(t, want, s.Scrub(in))
}

func TestScrubBase64Encoding(t *testing.T) {
	t.Parallel()

	s := scrub.New(map[string]string{"TOKEN": "hunter2"})

	encoded := base64.StdEncoding.EncodeToString([]byte("hunter2"))
	in := "X-Auth: " + encoded
	want := "X-Auth: [REDACTED:TOKEN:base64]"
	assert.Equal(t, want, s.Scrub(in))
}

func TestScrubIsCaseInsensitiveForRawValue(t *testing.T) {
	t.Parallel()

	s := scrub.New(map[string]string{"KEY": "AbCdEf123"})
	assert.Equal(t, "value [REDACTED:KEY] end", s.Scrub("value ABCDEF123 end"))
}

func TestScrubSkipsShortSecrets(t *testing.T) {
	t.Parallel()

	s := scrub.New(map[string]string{"SHORT": "ab"})
	assert.Equal(t, "value ab end", s.Scrub("value ab end"))
}

func TestScrubEmptyInputPassesThrough(t *testing.T) {
	t.Parallel()

	s := scrub.New(map[string]string{"KEY": "somevalue"})
	assert.Equal(t, "", s.Scrub(""))
}

func TestScrubNilScrubberIsNoop(t *testing.T) {
	t.Parallel()

	var s *scrub.Scrubber
	assert.Equal(t, "unchanged", s.Scrub("unchanged"))
}

func TestScrubURLEncodedForm(t *testing.T) {
	t.Parallel()

	s := scrub.New(map[string]string{"URL": "a b/c"})
	encoded := "a+b%2Fc"
	assert.Equal(t, "see [REDACTED:URL] there", s.Scrub("see "+encoded+" there"))
}

func TestScrubAfterRotationExcludesOldValue(t *testing.T) {
	t.Parallel()

	oldScrubber := scrub.New(map[string]string{"KEY": "old-value-123"})
	newScrubber := scrub.New(map[string]string{"KEY": "new-value-456"})

	text := "old-value-123 and new-value-456"
	assert.Contains(t, oldScrubber.Scrub(text), "[REDACTED:KEY]")
	assert.Contains(t, oldScrubber.Scrub(text), "new-value-456", "old scrubber doesn't know the new value")

	out := newScrubber.Scrub(text)
	assert.Contains(t, out, "old-value-123", "new scrubber doesn't know the old value")
	assert.Contains(t, out, "[REDACTED:KEY]")
}
