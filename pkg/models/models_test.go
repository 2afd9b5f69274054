package models

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordCloneIsDeep(t *testing.T) {
	orig := Record{ID: "1", Pictures: []string{"a.jpg"}}
	c := orig.Clone()
	c.Pictures[0] = "changed.jpg"
	c.Pictures = append(c.Pictures, "b.jpg")

	assert.Equal(t, []string{"a.jpg"}, orig.Pictures)
}

func TestRecordLineFormat(t *testing.T) {
	rec := Record{
		ID:                  "1050118621198921728",
		Text:                "hello https://t.co/abcdefghij",
		InReplyToID:         "1050118621198921700",
		InReplyToScreenName: "bob",
		User: Author{
			ID:               42,
			Name:             "Alice",
			ScreenName:       "alice",
			ProfileImageURL:  "https://pbs.example/alice.jpg",
			ProfileImagePath: "profile_images/profile_image_user_alice.jpg",
		},
		Pictures: []string{},
	}

	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var generic map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &generic))
	assert.Equal(t, "1050118621198921728", generic["id"])
	assert.Equal(t, "1050118621198921700", generic["in_reply_to_status_id"])
	assert.Equal(t, []interface{}{}, generic["pictures"])

	user := generic["user"].(map[string]interface{})
	assert.Equal(t, "alice", user["screen_name"])
	assert.Equal(t, "profile_images/profile_image_user_alice.jpg", user["profile_image_path"])
}

func TestRecordWithoutParentOmitsReplyFields(t *testing.T) {
	data, err := json.Marshal(Record{ID: "1", Pictures: []string{}})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "in_reply_to_status_id")
	assert.False(t, Record{ID: "1"}.HasParent())
}

func TestStatusURL(t *testing.T) {
	assert.Equal(t, "https://twitter.com/alice/status/7", StatusURL("https://twitter.com", "alice", "7"))
}
