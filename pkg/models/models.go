package models

import "fmt"

// RawPost is one timeline item as delivered by the remote API.
// Raw holds the verbatim JSON object and is what goes into the raw log.
type RawPost struct {
	ID                  string
	Text                string
	InReplyToID         string
	InReplyToScreenName string
	User                RawUser
	Media               []RawMedia
	Raw                 []byte
}

// RawUser is the author block of a RawPost
type RawUser struct {
	ID              int64
	IDStr           string
	Name            string
	ScreenName      string
	ProfileImageURL string
}

// RawMedia is an embedded media hint from entities.media or
// extended_entities.media
type RawMedia struct {
	MediaURL string
}

// Record is the normalized, archived form of a post. Its JSON encoding is
// the line format of the records log.
type Record struct {
	ID                  string   `json:"id"`
	Text                string   `json:"text"`
	InReplyToID         string   `json:"in_reply_to_status_id,omitempty"`
	InReplyToScreenName string   `json:"in_reply_to_screen_name,omitempty"`
	User                Author   `json:"user"`
	Pictures            []string `json:"pictures"`
}

// Author is the normalized author of a Record
type Author struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	ScreenName       string `json:"screen_name"`
	ProfileImageURL  string `json:"profile_image_url,omitempty"`
	ProfileImagePath string `json:"profile_image_path,omitempty"`
}

// Clone returns a deep copy of r
func (r Record) Clone() Record {
	c := r
	if r.Pictures != nil {
		c.Pictures = make([]string, len(r.Pictures))
		copy(c.Pictures, r.Pictures)
	}
	return c
}

// HasParent reports whether the record is a reply
func (r Record) HasParent() bool {
	return r.InReplyToID != ""
}

// StatusURL returns the canonical page address of the post under webBase
func StatusURL(webBase, screenName, id string) string {
	return fmt.Sprintf("%s/%s/status/%s", webBase, screenName, id)
}
