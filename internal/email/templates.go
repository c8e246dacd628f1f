package email

import (
	"fmt"
	"html"
	"strings"
)

func esc(s string) string {
	return html.EscapeString(s)
}

// layout wraps content in the shared message frame
func layout(title, content string) string {
	return fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>%[1]s</title>
</head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <div style="max-width: 700px; margin: 0 auto; padding: 20px;">
        <h2 style="color: #1a5276;">%[1]s</h2>
        %[2]s
        <hr style="border: none; border-top: 1px solid #eee; margin: 20px 0;">
        <p style="color: #999; font-size: 12px;">This is an automated message from the examination section. Please do not reply.</p>
    </div>
</body>
</html>
`, esc(title), content)
}

// joinNames prefers display names and falls back to addresses
func joinNames(names, emails []string) string {
	if len(names) > 0 {
		return strings.Join(names, ", ")
	}
	return strings.Join(emails, ", ")
}
