package contentrouter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoute_DefaultsToTextOnlyWhenCapabilityMissing(t *testing.T) {
	result := Route("hi", []RawAttachment{{Type: "image", Ref: "artifact:1"}}, Capability{})
	require.Len(t, result.Attachments, 1)
	assert.False(t, result.Attachments[0].Supported)
}

func TestRoute_SupportedTypeInlinedWithRawBytes(t *testing.T) {
	cap := Capability{Input: []string{"text", "image"}}
	result := Route("hi", []RawAttachment{{Type: "image", Ref: "artifact:1", Data: []byte("bytes")}}, cap)

	require.Len(t, result.Attachments, 1)
	a := result.Attachments[0]
	assert.True(t, a.Supported)
	assert.NotEmpty(t, a.InlineData)
	assert.Empty(t, a.Description)
}

func TestRoute_UnsupportedTypeDescribedWithAllFields(t *testing.T) {
	cap := Capability{Input: []string{"text"}}
	result := Route("hi", []RawAttachment{{
		Type:     "audio",
		Ref:      "artifact:42",
		Filename: "clip.mp3",
		Size:     2048,
	}}, cap)

	require.Len(t, result.Attachments, 1)
	a := result.Attachments[0]
	assert.False(t, a.Supported)
	assert.Contains(t, a.Description, "artifact:42")
	assert.Contains(t, a.Description, "audio")
	assert.Contains(t, a.Description, "clip.mp3")
	assert.Contains(t, a.Description, "2048")
	assert.Contains(t, a.Description, "spawning an agent")

	// Structured fields must also be populated for programmatic parsing.
	assert.Equal(t, "artifact:42", a.Ref)
	assert.Equal(t, "audio", a.Type)
	assert.Equal(t, "clip.mp3", a.Filename)
	assert.EqualValues(t, 2048, a.Size)
}

func TestRoute_MixedSupportedAndUnsupported(t *testing.T) {
	cap := Capability{Input: []string{"text", "image"}}
	result := Route("hi", []RawAttachment{
		{Type: "image", Ref: "a1", Data: []byte("x")},
		{Type: "file", Ref: "a2", Filename: "doc.pdf"},
	}, cap)

	require.Len(t, result.Attachments, 2)
	assert.True(t, result.Attachments[0].Supported)
	assert.False(t, result.Attachments[1].Supported)
}
