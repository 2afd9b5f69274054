package twitter

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	// DefaultAPIBaseURL is the REST v1.1 root
	DefaultAPIBaseURL = "https://api.twitter.com/1.1"

	// HomeTimelineEndpoint returns the most recent posts of the authenticating user's home timeline
	HomeTimelineEndpoint = "/statuses/home_timeline.json"

	// DefaultCount matches one request per minute under the 15-per-15-minutes limit
	DefaultCount = 15

	// MaxCount is the largest page the endpoint serves
	MaxCount = 200
)

// HomeTimelineURL builds the home timeline request URL
func HomeTimelineURL(baseURL string, count int) string {
	if count <= 0 {
		count = DefaultCount
	} else if count > MaxCount {
		count = MaxCount
	}

	params := url.Values{}
	params.Set("count", strconv.Itoa(count))
	return fmt.Sprintf("%s%s?%s", strings.TrimRight(baseURL, "/"), HomeTimelineEndpoint, params.Encode())
}
