package htmltext

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract_PrefersReportContainer(t *testing.T) {
	doc := `<html><head><title>Portal</title><style>.x{}</style></head><body>
<nav>Home | Reports</nav>
<div id="dvReport">
  <table>
    <tr><td>1.</td><td>Name</td><td>Ram   Kumar</td></tr>
    <tr><td>2.</td><td>eHRMS Code</td><td>UP123</td></tr>
  </table>
  <script>var leaked = "3. Cadre";</script>
</div>
</body></html>`

	text, err := ExtractString(doc)
	require.NoError(t, err)
	assert.Equal(t, "1. Name Ram Kumar\n2. eHRMS Code UP123", text)
}

func TestExtract_ContainerFallbacks(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "report class",
			doc:  `<body><p>header</p><div class="emp-report">1. Name A</div></body>`,
			want: "1. Name A",
		},
		{
			name: "dialog content",
			doc:  `<body><p>header</p><div class="ui-dialog-content">1. Name B</div></body>`,
			want: "1. Name B",
		},
		{
			name: "modal body",
			doc:  `<body><p>header</p><div class="modal-body">1. Name C</div></body>`,
			want: "1. Name C",
		},
		{
			name: "whole body",
			doc:  `<body><p>1. Name D</p><p>2. Gender Male</p></body>`,
			want: "1. Name D\n2. Gender Male",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, err := ExtractString(tt.doc)
			require.NoError(t, err)
			assert.Equal(t, tt.want, text)
		})
	}
}

func TestExtract_BlockBoundariesSeparateWords(t *testing.T) {
	text, err := ExtractString(`<div id="dvReport"><div>Name</div><div>Ram</div>Kumar<br>Singh</div>`)
	require.NoError(t, err)
	assert.Equal(t, "Name\nRam\nKumar\nSingh", text)
}

func TestExtract_NormalizesCompatibilityForms(t *testing.T) {
	// U+00A0 and the fullwidth digit fold to their ASCII forms.
	text, err := ExtractString("<body><p>１. Name Ram</p></body>")
	require.NoError(t, err)
	assert.Equal(t, "1. Name Ram", text)
}

func TestExtract_Empty(t *testing.T) {
	text, err := ExtractString("")
	require.NoError(t, err)
	assert.Equal(t, "", text)
}

func TestExtract_DeeplyNestedText(t *testing.T) {
	depth := 300
	doc := `<div id="dvReport">` + strings.Repeat("<span>", depth) +
		"7. Home District Lucknow" + strings.Repeat("</span>", depth) + "<p>9. Cadre Doctor</p></div>"

	text, err := ExtractString(doc)
	require.NoError(t, err)
	assert.Equal(t, "7. Home District Lucknow\n9. Cadre Doctor", text)
}
