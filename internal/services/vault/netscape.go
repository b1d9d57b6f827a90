package vault

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ternarybob/capto/internal/models"
)

// Netscape cookie file format, as consumed by yt-dlp's --cookies flag.
// Each record is seven tab-separated fields:
//
//	domain  includeSubdomains  path  secure  expires  name  value
//
// includeSubdomains is TRUE when the domain starts with a dot.
const netscapeHeader = "# Netscape HTTP Cookie File\n# This is a generated file! Do not edit.\n\n"

// FormatNetscape serializes cookies into the Netscape wire format.
// Cookies with empty names are skipped.
func FormatNetscape(cookies []models.Cookie) string {
	var b strings.Builder
	b.WriteString(netscapeHeader)

	for _, c := range cookies {
		if c.Name == "" {
			continue
		}

		includeSubdomains := "FALSE"
		if strings.HasPrefix(c.Domain, ".") {
			includeSubdomains = "TRUE"
		}

		secure := "FALSE"
		if c.Secure {
			secure = "TRUE"
		}

		path := c.Path
		if path == "" {
			path = "/"
		}

		// Session cookies carry a zero expiry.
		expires := int64(0)
		if c.Expires > 0 {
			expires = c.Expires
		}

		b.WriteString(fmt.Sprintf("%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			c.Domain, includeSubdomains, path, secure, expires, c.Name, c.Value))
	}

	return b.String()
}

// ParseNetscape parses a Netscape cookie file back into structured cookies.
// Comment and blank lines are ignored; short lines are an error.
func ParseNetscape(data string) ([]models.Cookie, error) {
	var cookies []models.Cookie

	for i, line := range strings.Split(data, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) != 7 {
			return nil, fmt.Errorf("malformed cookie line %d: expected 7 fields, got %d", i+1, len(fields))
		}

		expires, err := strconv.ParseInt(fields[4], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed expiry on line %d: %w", i+1, err)
		}

		cookies = append(cookies, models.Cookie{
			Domain:  fields[0],
			Path:    fields[2],
			Secure:  fields[3] == "TRUE",
			Expires: expires,
			Name:    fields[5],
			Value:   fields[6],
		})
	}

	return cookies, nil
}
