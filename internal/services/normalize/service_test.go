package normalize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nuntius/internal/models"
)

func newTestService() *Service {
	return NewService(50, arbor.NewLogger())
}

func raw(title, content string) *models.RawArticle {
	return &models.RawArticle{Title: title, Content: content, Source: "feed"}
}

func TestNormalizeCombinesTitleAndContent(t *testing.T) {
	svc := newTestService()

	out, err := svc.Normalize(raw(
		"HDFC Bank reports quarterly results",
		"The lender posted higher profit on strong loan growth.",
	))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "HDFC Bank reports quarterly results\n\n"))
	assert.Contains(t, out, "higher profit on strong loan growth")
}

func TestNormalizeRejectsEmptyTitle(t *testing.T) {
	svc := newTestService()

	_, err := svc.Normalize(raw("   ", "content long enough to clear the minimum floor easily here"))
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestNormalizeRejectsShortContent(t *testing.T) {
	svc := newTestService()

	_, err := svc.Normalize(raw("Brief", "tiny"))
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestNormalizeFloorCountsRunesNotBytes(t *testing.T) {
	svc := newTestService()

	// 30 rupee signs are 90 bytes but only 30 characters; with the title the
	// combined text stays under the 50-character floor.
	content := strings.Repeat("₹", 30)
	combined := "RBI update\n\n" + content
	require.GreaterOrEqual(t, len(combined), 50)

	_, err := svc.Normalize(raw("RBI update", content))
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestNormalizeAcceptsMultibyteContentAboveFloor(t *testing.T) {
	svc := newTestService()

	out, err := svc.Normalize(raw(
		"Rupee steadies",
		"The rupee closed at ₹83.20 per dollar as bond yields eased and state banks bought dollars.",
	))
	require.NoError(t, err)
	assert.Contains(t, out, "₹83.20")
}

func TestNormalizeStripsMarkup(t *testing.T) {
	svc := newTestService()

	out, err := svc.Normalize(raw(
		"Markets update",
		`<html><body><script>track()</script><nav>Home</nav>`+
			`<p>Shares of <b>ICICI Bank</b> rose two percent on Monday.</p>`+
			`<footer>Copyright</footer></body></html>`,
	))
	require.NoError(t, err)

	assert.Contains(t, out, "Shares of ICICI Bank rose two percent on Monday.")
	assert.NotContains(t, out, "track()")
	assert.NotContains(t, out, "<p>")
	assert.NotContains(t, out, "Copyright")
}

func TestNormalizeDecodesEntitiesOnFallback(t *testing.T) {
	svc := newTestService()

	out := svc.clean("<p>Profit &amp; loss statement for Q2 &nbsp; released</p>")

	assert.Contains(t, out, "Profit & loss statement")
	assert.NotContains(t, out, "&amp;")
	assert.NotContains(t, out, "&nbsp;")
}

func TestNormalizeRepairsMojibake(t *testing.T) {
	svc := newTestService()

	out, err := svc.Normalize(raw(
		"Quarterly commentary",
		"The bank\u00e2\u20ac\u2122s outlook stayed stable\u00c2\u00a0through the quarter under review.",
	))
	require.NoError(t, err)

	assert.Contains(t, out, "bank's outlook")
	assert.Contains(t, out, "stable through")
	assert.NotContains(t, out, "\u00e2\u20ac\u2122")
	assert.NotContains(t, out, "\u00c2\u00a0")
}

func TestNormalizeCollapsesWhitespace(t *testing.T) {
	svc := newTestService()

	out, err := svc.Normalize(raw(
		"Spacing check",
		"Plenty   of\n\n irregular\t\twhitespace   across this body of article text here.",
	))
	require.NoError(t, err)

	assert.Contains(t, out, "Plenty of irregular whitespace across")
}

func TestNormalizeTitleOnlyArticle(t *testing.T) {
	svc := newTestService()

	title := "Reserve Bank of India keeps repo rate unchanged at policy review"
	out, err := svc.Normalize(raw(title, ""))
	require.NoError(t, err)

	assert.Equal(t, title, out)
}
