package browser

import "strings"

const (
	textInputAfterSelectXPath = "following::input[@type='text'][1]"
	enabledTextInputXPath     = "//input[@type='text' and not(@disabled) and not(contains(@style,'display:none'))]"
	viewReportXPath           = "//button[normalize-space()='View Report' or contains(., 'View Report')] | //input[@type='button' and @value='View Report']"
	anyButtonXPath            = "//button | //input[@type='button' or @type='submit']"
)

// contentXPaths lists report containers inside the dialog, best first.
var contentXPaths = []string{
	"//div[@id='dvReport']",
	"//div[contains(@class,'report')]",
	"//*[contains(@class,'ui-dialog-content') or contains(@class,'modal-body')]",
	"//body",
}

// selectXPaths locates the dropdown that follows a form label.
func selectXPaths(label string) []string {
	lit := xpathLiteral(label)
	return []string{
		"//label[normalize-space()=" + lit + "]/following::select[1]",
		"//span[normalize-space()=" + lit + "]/following::select[1]",
		"//*[self::label or self::span][contains(normalize-space(.), " + lit + ")]/following::select[1]",
	}
}

func dialogXPath(title string) string {
	return "//*[contains(@class,'ui-dialog') and .//span[contains(normalize-space()," + xpathLiteral(title) + ")]]"
}

// xpathLiteral quotes s for XPath 1.0, which has no escape sequences.
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	var b strings.Builder
	b.WriteString("concat(")
	for i, part := range parts {
		if i > 0 {
			b.WriteString(`, "'", `)
		}
		b.WriteString("'" + part + "'")
	}
	b.WriteString(")")
	return b.String()
}
