package rendertemplate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_SubstitutesContext(t *testing.T) {
	r := New()

	out, err := r.Render("email.body", "Hello {{.name}}, your order {{.order_id}} shipped.", map[string]interface{}{
		"name":     "Dana",
		"order_id": "ord-123",
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello Dana, your order ord-123 shipped.", out)
}

func TestRender_MissingKeyErrors(t *testing.T) {
	r := New()

	_, err := r.Render("email.body", "Hello {{.name}}", map[string]interface{}{})
	assert.Error(t, err)
}

func TestRender_AutoescapesHTML(t *testing.T) {
	r := New()

	out, err := r.Render("email.body", "<p>{{.comment}}</p>", map[string]interface{}{
		"comment": "<script>alert(1)</script>",
	})
	require.NoError(t, err)
	assert.NotContains(t, out, "<script>")
}

func TestRender_InvalidTemplateSyntax(t *testing.T) {
	r := New()

	_, err := r.Render("email.body", "{{.unterminated", map[string]interface{}{})
	assert.Error(t, err)
}
