package templates

import (
	"strings"
	"testing"

	"wisdomwalk/utilities"
)

func TestNotificationTemplate(t *testing.T) {
	body, err := utilities.TemplateRendering(NotificationTemplate, map[string]string{
		"Heading":    "You were added to Morning Prayer",
		"Message":    "<script>alert(1)</script>",
		"Link":       "https://wisdomwalk.app/groups/1",
		"SenderName": "WisdomWalk",
	})
	if err != nil {
		t.Fatalf("TemplateRendering() error = %v", err)
	}

	out := body.String()
	if !strings.Contains(out, "Morning Prayer") {
		t.Error("heading missing from rendered body")
	}
	if strings.Contains(out, "<script>") {
		t.Error("message was not escaped")
	}
}
