package httputil

import "net/url"

// redact hides credential query parameters before a URL reaches the logs
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	q := u.Query()
	changed := false
	for _, key := range []string{"token", "apikey", "api_key"} {
		if q.Has(key) {
			q.Set(key, "REDACTED")
			changed = true
		}
	}
	if !changed {
		return raw
	}

	u.RawQuery = q.Encode()
	return u.String()
}
