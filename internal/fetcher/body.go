package fetcher

import (
	"io"
	"regexp"
	"strings"

	_ "github.com/emersion/go-message/charset"

	"github.com/emersion/go-message"
	gomail "github.com/emersion/go-message/mail"
)

// extractText returns the text/plain body of a MIME message, falling back to
// the text/html part converted to plain text. Attachments are ignored.
func extractText(r io.Reader) (string, error) {
	mr, err := gomail.CreateReader(r)
	if mr == nil || (err != nil && !message.IsUnknownCharset(err)) {
		return "", err
	}

	var plain, html string
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			return pick(plain, html), err
		}

		h, ok := p.Header.(*gomail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := h.ContentType()
		content, err := io.ReadAll(p.Body)
		if err != nil {
			return pick(plain, html), err
		}

		switch {
		case strings.HasPrefix(contentType, "text/plain") && plain == "":
			plain = string(content)
		case strings.HasPrefix(contentType, "text/html") && html == "":
			html = string(content)
		case contentType == "" && plain == "":
			plain = string(content)
		}
	}
	return pick(plain, html), nil
}

func pick(plain, html string) string {
	if strings.TrimSpace(plain) != "" {
		return strings.TrimSpace(plain)
	}
	if html != "" {
		return htmlToPlainText(html)
	}
	return ""
}

var (
	tagPattern       = regexp.MustCompile(`<[^>]*>`)
	blankLinePattern = regexp.MustCompile(`\n{3,}`)
	htmlReplacer     = strings.NewReplacer(
		"<br>", "\n",
		"<br/>", "\n",
		"<br />", "\n",
		"<p>", "\n",
		"</p>", "\n",
		"<div>", "\n",
		"</div>", "\n",
	)
	entityReplacer = strings.NewReplacer(
		"&nbsp;", " ",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", "\"",
		"&#39;", "'",
		"&amp;", "&",
	)
)

// htmlToPlainText strips tags from an HTML body.
func htmlToPlainText(html string) string {
	text := strings.ReplaceAll(html, "\r\n", "\n")
	text = htmlReplacer.Replace(text)
	text = tagPattern.ReplaceAllString(text, "")
	text = entityReplacer.Replace(text)
	text = blankLinePattern.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
