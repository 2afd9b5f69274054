package twitter

import "twarchive/pkg/models"

// status is the subset of a v1.1 Tweet object the archiver reads
type status struct {
	IDStr                string  `json:"id_str"`
	Text                 string  `json:"text"`
	FullText             string  `json:"full_text"`
	InReplyToStatusIDStr *string `json:"in_reply_to_status_id_str"`
	InReplyToScreenName  *string `json:"in_reply_to_screen_name"`
	User                 struct {
		ID                   int64  `json:"id"`
		IDStr                string `json:"id_str"`
		Name                 string `json:"name"`
		ScreenName           string `json:"screen_name"`
		ProfileImageURL      string `json:"profile_image_url"`
		ProfileImageURLHTTPS string `json:"profile_image_url_https"`
	} `json:"user"`
	Entities         entities `json:"entities"`
	ExtendedEntities entities `json:"extended_entities"`
}

type entities struct {
	Media []struct {
		Type          string `json:"type"`
		MediaURL      string `json:"media_url"`
		MediaURLHTTPS string `json:"media_url_https"`
	} `json:"media"`
}

func (s status) toRawPost(raw []byte) models.RawPost {
	text := s.Text
	if text == "" {
		text = s.FullText
	}

	avatar := s.User.ProfileImageURLHTTPS
	if avatar == "" {
		avatar = s.User.ProfileImageURL
	}

	post := models.RawPost{
		ID:   s.IDStr,
		Text: text,
		User: models.RawUser{
			ID:              s.User.ID,
			IDStr:           s.User.IDStr,
			Name:            s.User.Name,
			ScreenName:      s.User.ScreenName,
			ProfileImageURL: avatar,
		},
		Media: s.mediaHints(),
		Raw:   append([]byte(nil), raw...),
	}
	if s.InReplyToStatusIDStr != nil {
		post.InReplyToID = *s.InReplyToStatusIDStr
	}
	if s.InReplyToScreenName != nil {
		post.InReplyToScreenName = *s.InReplyToScreenName
	}
	return post
}

// mediaHints lists photo URLs, preferring extended_entities which carries
// every photo of a multi-photo post
func (s status) mediaHints() []models.RawMedia {
	source := s.ExtendedEntities.Media
	if len(source) == 0 {
		source = s.Entities.Media
	}

	var hints []models.RawMedia
	seen := make(map[string]bool)
	for _, m := range source {
		if m.Type != "" && m.Type != "photo" {
			continue
		}
		u := m.MediaURLHTTPS
		if u == "" {
			u = m.MediaURL
		}
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		hints = append(hints, models.RawMedia{MediaURL: u})
	}
	return hints
}
