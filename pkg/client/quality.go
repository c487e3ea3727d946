package client

import (
	"fmt"
	"net/url"
	"strconv"
)

// ImageURL applies the CDN quality knob to an image URL. Quality 100 asks for
// the original file; anything lower requests a recompressed variant.
func ImageURL(raw string, quality int) (string, error) {
	if quality < 1 || quality > 100 {
		return "", fmt.Errorf("quality must be between 1 and 100, got %d", quality)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid image url %q: %w", raw, err)
	}

	q := u.Query()
	if quality == 100 {
		q.Del("type")
	} else {
		q.Set("type", "q"+strconv.Itoa(quality))
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}
